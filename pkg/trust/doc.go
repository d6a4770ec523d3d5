// Package trust is the session and device trust engine.
//
// Engine.Login runs one login through a fixed sequence: fingerprint the
// device, check the credential and the account status, resolve IP risk and
// location, enforce the per-user device cap, create or refresh the device
// session, run the impossible-travel check and record the outcome in the
// activity log. A flagged login still succeeds; the verdict is returned
// for the caller to act on.
//
// The cap check counts live sessions and then writes, so two concurrent
// logins from new devices can both pass it. The stores' unique index on
// (user, device) keeps one active row per device; an over-cap user is
// caught again on the next login.
//
// Logout is idempotent. ForceLogoutAll always writes exactly one
// force_logout entry. SweepExpired is a single predicate delete and is safe
// to run next to live traffic; Sweeper runs it on a ticker.
//
//	engine := trust.New(identitySvc, sessionRepo, logRepo,
//	    trust.WithConfig(cfg.Trust),
//	    trust.WithRiskResolver(iprisk.NewResolver(iprisk.WithOracle(vpnapi), iprisk.WithLocator(mmdb))),
//	)
//	go trust.NewSweeper(engine, 0).Run(ctx)
package trust
