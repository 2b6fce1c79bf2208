package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/pkg/errs"
)

func TestParseMessageID(t *testing.T) {
	cases := []struct {
		raw  string
		id   int64
		kind errs.Kind
	}{
		{raw: "42", id: 42},
		{raw: " 7 ", id: 7},
		{raw: "0", kind: errs.KindInvalidInput},
		{raw: "-3", kind: errs.KindInvalidInput},
		{raw: "abc", kind: errs.KindInvalidInput},
		{raw: "tmp-1712345", kind: errs.KindTransientRetryable},
		{raw: "2147483648", kind: errs.KindTransientRetryable},
		{raw: "99999999999999999999999", kind: errs.KindTransientRetryable},
		{raw: "-99999999999999999999999", kind: errs.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			id, err := ParseMessageID(tc.raw)
			if tc.id != 0 {
				assert.NoError(t, err)
				assert.Equal(t, tc.id, id)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tc.kind, errs.KindOf(err))
		})
	}
}

func TestCheckMessageIDBound(t *testing.T) {
	assert.NoError(t, CheckMessageID(domain.MaxMessageID))
	assert.ErrorIs(t, CheckMessageID(domain.MaxMessageID+1), ErrMessageNotPersisted)
	assert.True(t, errs.Retryable(CheckMessageID(domain.MaxMessageID+1)))
}
