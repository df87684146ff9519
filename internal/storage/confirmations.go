package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/pantry/internal/model"
)

// ApplyConfirmation applies a human decision as one unit: optionally create
// the product, link the item, write a confirmed mapping for the raw name and
// append the raw name as an alias when it is not already known. Either every
// effect is stored or none is.
func (s *SQLiteStorage) ApplyConfirmation(ctx context.Context, confirmation model.Confirmation) (*model.ConfirmationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(confirmation.ItemID, "itemID"); err != nil {
		return nil, err
	}
	key := model.NormalizeName(confirmation.RawName)
	if key == "" {
		return nil, fmt.Errorf("%w: rawName", ErrEmptyString)
	}
	if confirmation.NewProduct == nil {
		if err := validateString(confirmation.ProductID, "productID"); err != nil {
			return nil, err
		}
	} else if err := validateNewProduct(confirmation.NewProduct); err != nil {
		return nil, err
	}

	result := &model.ConfirmationResult{MappingKey: key}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		productID := confirmation.ProductID
		if confirmation.NewProduct != nil {
			id, err := s.createProductTx(ctx, tx, confirmation.NewProduct)
			if err != nil {
				return err
			}
			productID = id
			result.Created = true
		} else if _, err := s.getProductTx(ctx, tx, productID); err != nil {
			return err
		}

		if err := s.linkItemTx(ctx, tx, confirmation.ItemID, productID, model.SourceUser, model.ConfidenceCertain); err != nil {
			return err
		}
		result.ItemResolved = true

		err := s.upsertMappingTx(ctx, tx, &model.LearnedMapping{
			Key:        key,
			ProductID:  productID,
			Confidence: model.ConfidenceCertain,
			Confirmed:  true,
			Source:     model.SourceUserConfirmed,
			UseCount:   1,
		})
		if err != nil {
			return err
		}

		added, err := s.addAliasTx(ctx, tx, productID, key)
		if err != nil {
			return err
		}
		result.AliasAdded = added

		product, err := s.getProductTx(ctx, tx, productID)
		if err != nil {
			return err
		}
		result.Product = *product
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateMapping(key)
	return result, nil
}
