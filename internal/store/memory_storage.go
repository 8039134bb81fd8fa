package store

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// MemoryStorage is an in-process Storage with the same hash semantics as
// the redis backend, including per-field expiry. It backs redis-less dev
// runs and package tests; values are encoded through `redis` struct tags
// so stored shapes stay interchangeable with the redis implementation.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]*memoryEntry
}

type memoryEntry struct {
	fields   map[string]string
	expireAt time.Time
	fieldExp map[string]time.Time
}

func (e *memoryEntry) purge(now time.Time) {
	for field, exp := range e.fieldExp {
		if now.After(exp) {
			delete(e.fields, field)
			delete(e.fieldExp, field)
		}
	}
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

func (s *MemoryStorage) entry(key string, create bool) *memoryEntry {
	now := time.Now()
	e := s.data[key]
	if e != nil && e.expired(now) {
		delete(s.data, key)
		e = nil
	}
	if e == nil && create {
		e = &memoryEntry{
			fields:   make(map[string]string),
			fieldExp: make(map[string]time.Time),
		}
		s.data[key] = e
	}
	if e != nil {
		e.purge(now)
	}
	return e
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, false)
	if e == nil || len(e.fields) == 0 {
		return ErrNotFound
	}
	return decodeFields(e.fields, val)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, true)
	for field, str := range encodeFields(val) {
		e.fields[field] = str
	}
	if expiresIn > 0 {
		e.expireAt = time.Now().Add(expiresIn)
	}
	return nil
}

func (s *MemoryStorage) Save(ctx context.Context, key string, val any) error {
	return s.Set(ctx, key, val, 0)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry(key, false) == nil {
		return ErrNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *MemoryStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(key, false); e != nil {
		e.expireAt = expiresAt
	}
	return nil
}

func (s *MemoryStorage) SetAttr(ctx context.Context, key string, field string, val any, exp ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, true)
	e.fields[field] = encodeValue(val)
	if len(exp) > 0 {
		e.fieldExp[field] = time.Now().Add(exp[0])
	}
	return nil
}

func (s *MemoryStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, false)
	if e == nil {
		return ErrNotFound
	}
	str, ok := e.fields[field]
	if !ok {
		return ErrNotFound
	}
	return decodeValue(str, val)
}

func (s *MemoryStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, true)
	next := cast.ToInt64(e.fields[field]) + delta
	e.fields[field] = cast.ToString(next)
	return next, nil
}

func (s *MemoryStorage) ExpireAttr(ctx context.Context, key string, expiresAt time.Time, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, false)
	if e == nil {
		return nil
	}
	for _, field := range fields {
		if _, ok := e.fields[field]; ok {
			e.fieldExp[field] = expiresAt
		}
	}
	return nil
}

func (s *MemoryStorage) DelAttr(ctx context.Context, key string, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(key, false); e != nil {
		delete(e.fields, field)
		delete(e.fieldExp, field)
	}
	return nil
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]*memoryEntry),
	}
}

func encodeFields(val any) map[string]string {
	out := make(map[string]string)
	rv := reflect.Indirect(reflect.ValueOf(val))
	switch rv.Kind() {
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			out[cast.ToString(k.Interface())] = encodeValue(rv.MapIndex(k).Interface())
		}
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			tag := strings.Split(rt.Field(i).Tag.Get("redis"), ",")[0]
			if tag == "" || tag == "-" {
				continue
			}
			out[tag] = encodeValue(rv.Field(i).Interface())
		}
	}
	return out
}

func decodeFields(fields map[string]string, val any) error {
	rv := reflect.Indirect(reflect.ValueOf(val))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := strings.Split(rt.Field(i).Tag.Get("redis"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		str, ok := fields[tag]
		if !ok {
			continue
		}
		if err := decodeValue(str, rv.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

func encodeValue(val any) string {
	if t, ok := val.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return cast.ToString(val)
}

func decodeValue(str string, val any) error {
	switch v := val.(type) {
	case *string:
		*v = str
	case *int:
		*v = cast.ToInt(str)
	case *int64:
		*v = cast.ToInt64(str)
	case *uint:
		*v = cast.ToUint(str)
	case *uint64:
		*v = cast.ToUint64(str)
	case *bool:
		*v = cast.ToBool(str)
	case *float64:
		*v = cast.ToFloat64(str)
	case *time.Time:
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return err
		}
		*v = t
	}
	return nil
}
