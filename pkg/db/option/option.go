// Package option holds composable query filters applied to gorm statements.
package option

import (
	"reflect"
	"strings"

	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// Equal matches column = value. A nil value matches NULL.
func Equal(column string, value any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if isNil(value) {
			return db.Where(column + " IS NULL")
		}
		return db.Where(column+" = ?", value)
	})
}

func In[V any](column string, values []V) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if len(values) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where(column+" IN ?", values)
	})
}

func Not(column string, value any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if isNil(value) {
			return db.Where(column + " IS NOT NULL")
		}
		return db.Where(column+" <> ?", value)
	})
}

func Gte(column string, value any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" >= ?", value)
	})
}

func Lte(column string, value any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" <= ?", value)
	})
}

func IsNull(column string) QueryOption { return Equal(column, nil) }

func NotNull(column string) QueryOption { return Not(column, nil) }

func StartsWith(column, prefix string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" LIKE ? ESCAPE '!'", likePrefix(prefix))
	})
}

// NotStartsWith keeps rows whose column does not begin with prefix. NULL
// values are kept.
func NotStartsWith(column, prefix string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where("("+column+" IS NULL OR "+column+" NOT LIKE ? ESCAPE '!')", likePrefix(prefix))
	})
}

func OrderBy(expr string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(expr)
	})
}

func Limit(n int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if n <= 0 {
			return db
		}
		return db.Limit(n)
	})
}

func Offset(n int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if n <= 0 {
			return db
		}
		return db.Offset(n)
	})
}

var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
