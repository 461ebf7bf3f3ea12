package models

import "errors"

// ErrReceiptImmutable is returned when an issued receipt is about to be modified.
var ErrReceiptImmutable = errors.New("receipts are immutable")
