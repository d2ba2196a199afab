// Package esi implements the client protocol for EVE Online's ESI API:
// conditional GETs backed by a shared cache, bounded retry with
// per-status backoff, all-or-nothing pagination fan-out, and a server
// health probe.
//
// All request outcomes are communicated through Result; the client never
// returns an error for upstream or cache trouble. A Result with absent
// data is a definitive failure regardless of its status code.
//
//	cfg := esi.DefaultConfig(redisClient, "moonwatch/1.0 (ops@example.com)")
//	client, err := esi.New(cfg)
//	if err != nil {
//		return err
//	}
//
//	res := client.Get(ctx, esi.DefaultAPIRoot+"/status/", nil, nil)
//	if !res.Ok() {
//		// degrade: show stale data, skip the task cycle
//	}
package esi
