package filestore

import (
	"encoding/json"
	"fmt"
)

// getDoc decodes one document, returning nil when absent.
func getDoc[T any](s *Store, collection, key string) (*T, error) {
	res, err := s.Read(collection)
	if err != nil {
		return nil, err
	}
	raw, ok := res.Data[key]
	if !ok {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, key, err)
	}
	return &v, nil
}

// listDocs decodes every document that match accepts. Undecodable entries are skipped.
func listDocs[T any](s *Store, collection string, match func(*T) bool) ([]*T, error) {
	res, err := s.Read(collection)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0)
	for key, raw := range res.Data {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			s.logger.Warnf("Skipping undecodable document %s/%s: %v", collection, key, err)
			continue
		}
		if match == nil || match(&v) {
			out = append(out, &v)
		}
	}
	return out, nil
}

func putRaw(doc Document, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", key, err)
	}
	doc[key] = raw
	return nil
}

// putDoc writes one document under key.
func putDoc(s *Store, collection, key string, v interface{}) error {
	return s.Update(collection, func(doc Document) error {
		return putRaw(doc, key, v)
	})
}

// deleteDoc removes one document; a missing key is not an error.
func deleteDoc(s *Store, collection, key string) error {
	return s.Update(collection, func(doc Document) error {
		delete(doc, key)
		return nil
	})
}

// modifyDoc loads key (nil if absent), lets fn change it, and stores the result.
func modifyDoc[T any](s *Store, collection, key string, fn func(*T) (*T, error)) (*T, error) {
	var result *T
	err := s.Update(collection, func(doc Document) error {
		var current *T
		if raw, ok := doc[key]; ok {
			current = new(T)
			if err := json.Unmarshal(raw, current); err != nil {
				return fmt.Errorf("failed to decode %s/%s: %w", collection, key, err)
			}
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		result = next
		return putRaw(doc, key, next)
	})
	return result, err
}

// deleteWhere removes every document match accepts and returns how many went.
func deleteWhere[T any](s *Store, collection string, match func(*T) bool) (int64, error) {
	var removed int64
	err := s.Update(collection, func(doc Document) error {
		for key, raw := range doc {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			if match(&v) {
				delete(doc, key)
				removed++
			}
		}
		return nil
	})
	return removed, err
}
