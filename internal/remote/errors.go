package remote

import pkgerrors "github.com/julianshen/twspoc/pkg/errors"

// IsTransport reports a network or HTTP failure.
func IsTransport(err error) bool { return pkgerrors.HasCode(err, pkgerrors.CodeTransport) }

// IsConnect reports a push channel that could not be established.
func IsConnect(err error) bool { return pkgerrors.HasCode(err, pkgerrors.CodeConnect) }

// IsDecode reports a single malformed payload.
func IsDecode(err error) bool { return pkgerrors.HasCode(err, pkgerrors.CodeDecode) }

// IsTimeout reports a request that exceeded its bound.
func IsTimeout(err error) bool { return pkgerrors.HasCode(err, pkgerrors.CodeTimeout) }
