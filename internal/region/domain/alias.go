package domain

import "strings"

// provinceAliases maps the short province names returned by address lookups
// onto the names used in the region tree.
var provinceAliases = map[string]string{
	"서울": "서울특별시",
	"부산": "부산광역시",
	"대구": "대구광역시",
	"인천": "인천광역시",
	"광주": "광주광역시",
	"대전": "대전광역시",
	"울산": "울산광역시",
	"세종": "세종특별자치시",
	"경기": "경기도",
	"강원": "강원특별자치도",
	"충북": "충청북도",
	"충남": "충청남도",
	"전북": "전라북도",
	"전남": "전라남도",
	"경북": "경상북도",
	"경남": "경상남도",
	"제주": "제주특별자치도",
}

var districtAliases = map[string]map[string]string{
	"세종특별자치시": {"세종": "세종시"},
}

// CanonicalPair rewrites a (province, district) pair to the names stored in
// the region tree. Unknown names are returned trimmed but otherwise intact.
func CanonicalPair(province, district string) (string, string) {
	province = strings.TrimSpace(province)
	district = strings.TrimSpace(district)
	if full, ok := provinceAliases[province]; ok {
		province = full
	}
	if aliases, ok := districtAliases[province]; ok {
		if full, ok := aliases[district]; ok {
			district = full
		}
	}
	return province, district
}
