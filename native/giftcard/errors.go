package giftcard

import "errors"

var (
	ErrNotFound             = errors.New("giftcard: card not found")
	ErrInvalidAmount        = errors.New("giftcard: amount must be greater than zero")
	ErrInvalidExpiry        = errors.New("giftcard: expiry must be in the future")
	ErrNameTooLong          = errors.New("giftcard: merchant name exceeds 32 characters")
	ErrCardExists           = errors.New("giftcard: identifier already exists with different definition")
	ErrNotActive            = errors.New("giftcard: card is not active")
	ErrCardExpired          = errors.New("giftcard: card has expired")
	ErrCardNotExpired       = errors.New("giftcard: card has not expired yet")
	ErrNotCurrentOwner      = errors.New("giftcard: caller is not the current owner")
	ErrUnauthorizedMerchant = errors.New("giftcard: unauthorized merchant")
	ErrNotOwnedByMerchant   = errors.New("giftcard: card is not held by the merchant")
	ErrInsufficientBalance  = errors.New("giftcard: insufficient remaining balance")
)
