package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/verdant/pkg/db"
	"github.com/smallbiznis/verdant/pkg/db/option"
	"gorm.io/gorm"
)

const (
	groupCountColumn = "group_count"
	sumColumnPrefix  = "sum_"
)

type store[T any] struct {
	db         *gorm.DB
	retryDelay time.Duration
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db, retryDelay: 20 * time.Millisecond}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx, retryDelay: r.retryDelay}
}

func (r *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Update(ctx context.Context, id snowflake.ID, patch any) error {
	return r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(patch).Error
}

func (r *store[T]) UpdateWhere(ctx context.Context, patch map[string]any, opts ...option.QueryOption) (int64, error) {
	stmt := r.db.WithContext(ctx).Model(new(T))
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	res := stmt.Updates(patch)
	return res.RowsAffected, res.Error
}

// UpdateOrCreate looks up a row by match. A hit is overwritten in place and
// keeps its primary key; a miss inserts resource. A concurrent insert of the
// same natural key is retried once before ErrUpsertConflict is returned.
func (r *store[T]) UpdateOrCreate(ctx context.Context, resource *T, match ...option.QueryOption) (*T, error) {
	entity, ok := any(resource).(Entity)
	if !ok {
		return nil, ErrNotEntity
	}
	if len(match) == 0 {
		return nil, errors.New("update_or_create requires match criteria")
	}

	attempt := func() error {
		// nested transactions become savepoints, so a failed insert does not
		// poison a caller's surrounding transaction
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := r.WithTrx(tx).FindOne(ctx, nil, match...)
			if err != nil {
				return err
			}
			if existing != nil {
				entity.SetID(any(existing).(Entity).GetID())
				return tx.WithContext(ctx).Model(existing).Select("*").Omit("created_at").Updates(resource).Error
			}
			return tx.WithContext(ctx).Create(resource).Error
		})
		if err == nil || db.IsDuplicateKeyErr(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryDelay), 1), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrUpsertConflict, err)
		}
		return nil, err
	}
	return resource, nil
}

func (r *store[T]) Delete(ctx context.Context, id snowflake.ID) error {
	var dummy T
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&dummy).Error
}

func (r *store[T]) DeleteWhere(ctx context.Context, opts ...option.QueryOption) (int64, error) {
	if len(opts) == 0 {
		return 0, errors.New("delete requires criteria")
	}
	stmt := r.db.WithContext(ctx)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	var dummy T
	res := stmt.Delete(&dummy)
	return res.RowsAffected, res.Error
}

func (r *store[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	var count int64
	err := r.buildQuery(ctx, query, opts...).Model(new(T)).Count(&count).Error
	return count, err
}

func (r *store[T]) GroupBy(ctx context.Context, spec GroupSpec, opts ...option.QueryOption) ([]GroupRow, error) {
	selects := make([]string, 0, len(spec.By)+len(spec.Sum)+1)
	selects = append(selects, spec.By...)
	for _, col := range spec.Sum {
		selects = append(selects, fmt.Sprintf("SUM(%s) AS %s%s", col, sumColumnPrefix, col))
	}
	selects = append(selects, "COUNT(*) AS "+groupCountColumn)

	stmt := r.db.WithContext(ctx).Model(new(T)).Select(strings.Join(selects, ", "))
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	if len(spec.By) > 0 {
		stmt = stmt.Group(strings.Join(spec.By, ", "))
	}
	if spec.Having != "" {
		stmt = stmt.Having(spec.Having, spec.HavingArgs...)
	}
	if spec.OrderBy != "" {
		stmt = stmt.Order(spec.OrderBy)
	}

	var raw []map[string]any
	if err := stmt.Find(&raw).Error; err != nil {
		return nil, err
	}

	rows := make([]GroupRow, 0, len(raw))
	for _, item := range raw {
		row := GroupRow{
			Keys: make(map[string]any, len(spec.By)),
			Sums: make(map[string]*float64, len(spec.Sum)),
		}
		for _, col := range spec.By {
			row.Keys[col] = item[col]
		}
		for _, col := range spec.Sum {
			row.Sums[col] = toFloat(item[sumColumnPrefix+col])
		}
		if count := toFloat(item[groupCountColumn]); count != nil {
			row.Count = int64(*count)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Create(resources).Error
}

func (r *store[T]) buildQuery(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	stmt := r.db.WithContext(ctx)
	if filter != nil {
		stmt = stmt.Where(filter)
	}

	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	return stmt
}

// toFloat normalizes aggregate values, which drivers return as float64,
// int64 or raw bytes depending on dialect.
func toFloat(v any) *float64 {
	var f float64
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case int:
		f = float64(val)
	case []byte:
		parsed, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
