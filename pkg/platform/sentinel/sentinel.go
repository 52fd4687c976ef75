package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: no user, record or token entry for the key
//   - ErrConflict: unique key already taken (e.g. directory email)
//   - ErrExpired: credential or denylist entry past its expiry
//   - ErrUnavailable: backing store (Postgres, Redis, Kafka) unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
