// Package vaulta is a client for the Vaulta asset and client-management API.
//
// A [Client] is built once with [New] and is safe for concurrent use. Every
// operation performs a single blocking round trip (plus retries) and returns
// typed records from the [model] package or an [*errs.Error]:
//
//	vc, err := vaulta.New("https://api.vaulta.example", vaulta.WithToken(token))
//	if err != nil {
//		return err
//	}
//
//	created, err := vc.CreateClient(ctx, model.ClientCreate{Name: "Acme", ClientID: "acme"})
//	switch {
//	case errors.Is(err, errs.ErrValidation):
//		// client_id already taken, or the payload was incomplete
//	case err != nil:
//		return err
//	}
//
// Signed serve links are produced locally with [Client.SignedServeURL] or the
// lower level [sign] package; no request is made to sign.
package vaulta
