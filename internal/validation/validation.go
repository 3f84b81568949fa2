package validation

import "errors"

// ZipcodeLength is the exact number of digits in a US zipcode.
const ZipcodeLength = 5

// ErrZipcodeEmpty is returned when the zipcode is empty.
var ErrZipcodeEmpty = errors.New("zipcode is required")

// ErrZipcodeLength is returned when the zipcode is not exactly ZipcodeLength bytes.
var ErrZipcodeLength = errors.New("zipcode must be 5 characters")

// ErrZipcodeNotDigits is returned when the zipcode contains anything other than ASCII digits.
var ErrZipcodeNotDigits = errors.New("zipcode must contain only digits")

// ValidateZipcode checks that input matches ^[0-9]{5}$ exactly. No trimming or
// other rewriting is applied: the same string is used as the key in every stage,
// so accepting a variant here would split the cache and store keyspace.
func ValidateZipcode(input string) (string, error) {
	if input == "" {
		return "", ErrZipcodeEmpty
	}
	if len(input) != ZipcodeLength {
		return "", ErrZipcodeLength
	}
	for i := 0; i < len(input); i++ {
		if input[i] < '0' || input[i] > '9' {
			return "", ErrZipcodeNotDigits
		}
	}
	return input, nil
}
