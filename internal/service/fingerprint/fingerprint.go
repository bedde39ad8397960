// Package fingerprint считает отпечаток содержимого источника для дедупликации.
package fingerprint

import (
	"crypto/sha256"
	"fmt"

	"guu-schedule-bot/internal/models"
	pkgerrors "guu-schedule-bot/pkg/errors"
)

// DefaultMaxSize: ограничение по умолчанию, совпадает с source.max_file_size.
const DefaultMaxSize = 20 << 20

type Hasher struct {
	maxSize int64
}

// NewHasher создаёт хешер; maxSize <= 0 означает DefaultMaxSize.
func NewHasher(maxSize int64) *Hasher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Hasher{maxSize: maxSize}
}

func (h *Hasher) MaxSize() int64 {
	return h.maxSize
}

// Sum возвращает SHA-256 точных байтов content.
func (h *Hasher) Sum(content []byte) (models.Fingerprint, error) {
	if int64(len(content)) > h.maxSize {
		return models.Fingerprint{}, fmt.Errorf("%d bytes, limit %d: %w", len(content), h.maxSize, pkgerrors.ErrSizeExceeded)
	}
	return sha256.Sum256(content), nil
}

// Sum считает отпечаток с ограничением DefaultMaxSize.
func Sum(content []byte) (models.Fingerprint, error) {
	return NewHasher(DefaultMaxSize).Sum(content)
}
