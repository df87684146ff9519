package model

// Confirmation is the unit of learning applied when a human links a receipt
// line to a product. Storage applies it atomically: the item link, the
// confirmed mapping upsert, the alias append and, when NewProduct is set,
// the product creation.
type Confirmation struct {
	NewProduct *NewProduct
	ItemID     string
	RawName    string
	ProductID  string
}

// ConfirmationResult reports what a confirmation changed.
type ConfirmationResult struct {
	Product      Product
	AliasAdded   bool
	Created      bool
	MappingKey   string
	ItemResolved bool
}
