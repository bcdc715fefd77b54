// Package lockstep is an embeddable two-stage authentication engine:
// username/password verification establishes a server-side session, and a
// TOTP second factor upgrades that session to a signed access token.
//
// The engine is constructed once via the builder and holds all of its
// dependencies explicitly; there is no package-level registry or global
// state. Hosts supply a [UserStore] for credential persistence and a Redis
// client for sessions and throttling:
//
//	engine, err := lockstep.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithUserStore(store).
//		Build()
//
// Sessions are opaque random identifiers backed by Redis; their existence
// proves password-stage authentication only. Access tokens are HS256 JWTs
// issued exclusively by VerifyTOTP and prove the full password-plus-TOTP
// ceremony.
//
// Passwords, TOTP secrets, codes, and signed tokens never appear in log
// output at any level.
package lockstep
