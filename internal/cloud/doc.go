// Package cloud discovers grills through the Otto Wilde account API.
//
// Discovery is two calls: POST /login with the account credentials, then
// GET /v2/grills with the returned bearer token. The grill list seeds the
// connection manager once at startup.
//
// # Usage
//
//	client := cloud.NewClient(cloud.Config{
//	    BaseURL:  cfg.Account.APIBaseURL,
//	    Email:    cfg.Account.Email,
//	    Password: cfg.Account.Password,
//	    Timeout:  cfg.GetAccountTimeout(),
//	})
//	grills, err := client.Discover(ctx)
//	if errors.Is(err, cloud.ErrAuthFailed) {
//	    // wrong credentials, nothing to connect
//	}
//
// Every request is counted (api_login_calls, api_grills_calls) through a
// Recorder. Calls made before a Recorder is attached are replayed when
// SetRecorder is called, so discovery can run before the manager exists.
//
// The access token is a JWT. Its exp claim is read without verification
// to decide when to log in again; the server remains the authority.
package cloud
