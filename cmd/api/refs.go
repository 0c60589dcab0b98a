package main

import (
	"fmt"

	"github.com/speps/go-hashids/v2"
)

// Donation references are short opaque codes handed to the donor at
// initiation and used for status polling, so the public API never
// exposes raw sequential ledger ids.
func newDonationRefs(salt string) (*hashids.HashID, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	return hashids.NewWithData(hd)
}

func (app *application) donationReference(id int64) (string, error) {
	return app.refs.EncodeInt64([]int64{id})
}

func (app *application) donationIDFromReference(reference string) (int64, error) {
	ids, err := app.refs.DecodeInt64WithError(reference)
	if err != nil || len(ids) != 1 {
		return 0, fmt.Errorf("invalid donation reference")
	}
	return ids[0], nil
}
