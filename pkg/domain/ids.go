package domain

import (
	dErrors "fxsettle/pkg/domain-errors"
)

// PaymentID is the caller-supplied opaque key of a payment.
// Invariant: non-empty, at most maxIDLength bytes, drawn from idAlphabet.
type PaymentID string

// AccountID identifies a party: a payer, a payee, an oracle, or a ledger
// account such as the escrow pool.
// Invariant: same shape as PaymentID.
type AccountID string

// InstrumentTag is a descriptive label such as a currency pair ("USD/EUR").
// It is not checked against a known set; it may be empty.
type InstrumentTag string

const (
	maxIDLength  = 128
	maxTagLength = 64
)

// ParsePaymentID constructs a PaymentID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, oversized, or
// contains characters outside the identifier alphabet.
func ParsePaymentID(s string) (PaymentID, error) {
	if err := validateIdentifier(s, "payment id"); err != nil {
		return "", err
	}
	return PaymentID(s), nil
}

// ParseAccountID constructs an AccountID from external input.
//
// Errors: returns CodeInvalidInput under the same rules as ParsePaymentID.
func ParseAccountID(s string) (AccountID, error) {
	if err := validateIdentifier(s, "account id"); err != nil {
		return "", err
	}
	return AccountID(s), nil
}

// ParseInstrumentTag constructs an InstrumentTag from external input.
// Letters, digits and "/._-" are accepted.
func ParseInstrumentTag(s string) (InstrumentTag, error) {
	if len(s) > maxTagLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "instrument tag too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '/' && c != '.' && c != '_' && c != '-' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "instrument tag contains invalid characters")
		}
	}
	return InstrumentTag(s), nil
}

func (id PaymentID) String() string { return string(id) }

func (id PaymentID) IsNil() bool { return id == "" }

func (id AccountID) String() string { return string(id) }

func (id AccountID) IsNil() bool { return id == "" }

func (t InstrumentTag) String() string { return string(t) }

// validateIdentifier accepts [A-Za-z0-9._:-]. Slashes, whitespace, control
// bytes and multi-byte runes are rejected.
func validateIdentifier(s, field string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return dErrors.New(dErrors.CodeInvalidInput, field+" too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '.' && c != '_' && c != ':' && c != '-' {
			return dErrors.New(dErrors.CodeInvalidInput, field+" contains invalid characters")
		}
	}
	return nil
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
