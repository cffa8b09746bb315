// Package server implements the authorization-server state machine of the testbed.
//
// The Server issues a fixed authorization code bound to a PKCE challenge and
// redirect URI, redeems that code exactly once for a fixed access/refresh token
// pair, and exchanges the fixed refresh token for the same access token again.
// HTTP concerns live in the root package; this package only deals with
// parameters, the pending request store and the resulting oauth2.Token.
//
// Two modes are supported:
//   - ModeStrict: response_type=code and S256 PKCE are required at authorize
//     time; redemption checks the code, the pending request, the redirect URI
//     and the code verifier, in that order.
//   - ModePermissive: only redirect_uri is required; any redemption presenting
//     the fixed code succeeds and PKCE is not verified.
//
// A failed redemption in strict mode leaves the pending request in place, so a
// client can retry with the correct verifier or redirect URI.
//
// Example usage:
//
//	store := memory.New()
//	srv, err := server.New(store, &server.Config{Mode: server.ModeStrict}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := srv.Authorize(ctx, server.AuthorizationParams{...})
package server
