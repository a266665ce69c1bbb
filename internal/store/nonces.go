package store

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"gorm.io/gorm"

	"tokengate/internal/errs"
	"tokengate/internal/model"
)

// nonceSpace bounds the random challenge values. Collisions inside the
// outstanding set are checked and retried.
const nonceSpace = 10_000_000

// IssueNonce creates a fresh challenge for an address, replacing any prior
// one so only the latest issued value is valid.
func (s *Store) IssueNonce(ctx context.Context, address string) (int64, error) {
	var value int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			n, err := rand.Int(rand.Reader, big.NewInt(nonceSpace))
			if err != nil {
				return err
			}
			value = n.Int64()

			var existing model.Nonce
			err = tx.Where("value = ?", value).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			if err != nil {
				return err
			}
		}

		if err := tx.Unscoped().Where("address = ?", address).Delete(&model.Nonce{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.Nonce{Address: address, Value: value}).Error
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// NonceByValue looks up an outstanding challenge and checks it was issued
// for the given address.
func (s *Store) NonceByValue(ctx context.Context, value int64, address string) (*model.Nonce, error) {
	var nonce model.Nonce
	err := s.db.WithContext(ctx).Where("value = ?", value).First(&nonce).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrInvalidNonce
	}
	if err != nil {
		return nil, err
	}
	if nonce.Address != address {
		return nil, errs.ErrInvalidNonce
	}
	return &nonce, nil
}
