// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"context"
	"errors"
	"testing"

	"github.com/bassosimone/errclass"
	"github.com/stretchr/testify/assert"
)

func TestDefaultErrClassifier(t *testing.T) {
	assert.Equal(t, "", DefaultErrClassifier.Classify(nil))
	assert.Equal(t, errclass.ETIMEDOUT, DefaultErrClassifier.Classify(context.DeadlineExceeded))
	assert.Equal(t, errclass.EGENERIC, DefaultErrClassifier.Classify(errors.New("unknown error")))
}

func TestErrClassifierFunc(t *testing.T) {
	classifier := ErrClassifierFunc(func(err error) string {
		if _, ok := err.(*SocketTimeoutError); ok {
			return "socket_timeout"
		}
		return ""
	})
	assert.Equal(t, "socket_timeout", classifier.Classify(&SocketTimeoutError{}))
	assert.Equal(t, "", classifier.Classify(errors.New("other")))
}
