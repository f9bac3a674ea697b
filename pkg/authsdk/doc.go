/*
Package authsdk is the Go client for the petauth token service.

# SDKClient vs Session

SDKClient covers the public endpoints and creates sessions:

	client := authsdk.NewSDKClient("https://auth.example.com")

	health, err := client.GetReadiness(ctx)
	jwks, err := client.GetJWKS(ctx)

	session, err := client.Login(ctx, authsdk.LoginRequest{Kind: "admin", Username: u, Password: p})

A Session holds one token pair and refreshes the access token once it is
within 30 seconds of expiry:

	me, err := session.Me(ctx)
	err = session.Logout(ctx)

# Refresh tokens are single use

Every refresh consumes the presented refresh token. A session serialises its
own refreshes; two sessions built from the same refresh token race, and the
loser gets ErrInvalidGrant and has to log in again.

# Error Handling

Failed requests return *OAuth2Error, comparable with errors.Is:

	if errors.Is(err, authsdk.ErrInvalidGrant) {
		// refresh token unknown, expired or already used
	}
*/
package authsdk
