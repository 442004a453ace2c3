package config

type IdentityConfig interface {
	GetTokenURL() string
	GetUserInfoURL() string
	GetSignupURL() string
	GetRevokeURL() string
	GetClientID() string
	GetClientSecret() string
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetTokenURL() string {
	return GetEnv("IDP_TOKEN_URL", "")
}

func (Identity) GetUserInfoURL() string {
	return GetEnv("IDP_USERINFO_URL", "")
}

func (Identity) GetSignupURL() string {
	return GetEnv("IDP_SIGNUP_URL", "")
}

func (Identity) GetRevokeURL() string {
	return GetEnv("IDP_REVOKE_URL", "")
}

func (Identity) GetClientID() string {
	return GetEnv("IDP_CLIENT_ID", "")
}

func (Identity) GetClientSecret() string {
	return GetEnv("IDP_CLIENT_SECRET", "")
}
