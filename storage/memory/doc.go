// Package memory provides an in-memory implementation of storage.AuthorizationRequestStore.
//
// Pending requests are kept in a map guarded by a single sync.Mutex. The
// redeem operation performs lookup, caller-supplied validation and deletion
// under that mutex, which gives concurrent /token calls for the same code at
// most one winner. There is no expiry sweep: a request that is never redeemed
// stays pending until it is replaced or the process exits.
//
// Example usage:
//
//	store := memory.New()
//	_ = store.SaveAuthorizationRequest(ctx, &storage.AuthorizationRequest{Code: "c", RedirectURI: "https://x/cb"})
//	req, err := store.RedeemAuthorizationRequest(ctx, "c", func(r *storage.AuthorizationRequest) error {
//	    return nil
//	})
package memory
