// Package tileerr defines the error taxonomy shared by every source backend
// and the request coordinator (§7). Backends never return raw driver errors
// across their public contract — they wrap them into a *Error carrying a
// Kind the HTTP edge can map to a status code.
package tileerr

import "fmt"

// Kind classifies an error the way §7 does, independent of which backend
// produced it.
type Kind int

const (
	// KindInvalidCoordinates: z/x/y out of range or malformed.
	KindInvalidCoordinates Kind = iota
	// KindSourceNotFound: unknown source id.
	KindSourceNotFound
	// KindTileNotFound: source has no tile at that coordinate.
	KindTileNotFound
	// KindStyleNotFound: unknown style id.
	KindStyleNotFound
	// KindMetadataError: unparseable archive header or DB metadata.
	KindMetadataError
	// KindBackendError: SQLite/Postgres/HTTP/raster failure below the
	// absence boundary.
	KindBackendError
	// KindTimeout: per-request deadline exceeded.
	KindTimeout
	// KindConfigError: startup validation failure.
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCoordinates:
		return "invalid_coordinates"
	case KindSourceNotFound:
		return "source_not_found"
	case KindTileNotFound:
		return "tile_not_found"
	case KindStyleNotFound:
		return "style_not_found"
	case KindMetadataError:
		return "metadata_error"
	case KindBackendError:
		return "backend_error"
	case KindTimeout:
		return "timeout"
	case KindConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code §7 maps the kind to. ConfigError has no
// HTTP surface — it is fatal at process startup.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidCoordinates:
		return 400
	case KindSourceNotFound, KindTileNotFound, KindStyleNotFound:
		return 404
	case KindTimeout:
		return 504
	default:
		return 500
	}
}

// Error wraps an underlying cause with a stable Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a *Error from kind, a message and an underlying cause,
// matching the teacher's fmt.Errorf("...: %w", err) wrapping idiom.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, defaulting to KindBackendError for anything else — an
// unclassified failure is treated as a backend failure, never silently
// swallowed.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return KindBackendError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
