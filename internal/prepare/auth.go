package prepare

import (
	"encoding/base64"
	"strings"

	"github.com/alcrishub/postman-runtime/internal/headers"
	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// resolveAuth resolves the effective auth block against target and returns the
// headers or query parameters it contributes
func (m *Materializer) resolveAuth(auth *types.Auth, target scope.Target) (string, []types.AuthParam, []headers.Entry, []queryParam, error) {
	if auth == nil || auth.Type == types.AuthInherit {
		auth = m.collectionAuth
	}
	if auth == nil || auth.Type == "" || auth.Type == types.AuthNoAuth {
		return "", nil, nil, nil, nil
	}

	params := make([]types.AuthParam, len(auth.Params))
	for i, p := range auth.Params {
		params[i] = types.AuthParam{Key: p.Key, Value: m.resolver.Resolve(p.Value, target)}
	}
	get := func(key string) string {
		for _, p := range params {
			if p.Key == key {
				return p.Value
			}
		}
		return ""
	}

	switch auth.Type {
	case types.AuthBasic:
		creds := get("username") + ":" + get("password")
		return auth.Type, params, []headers.Entry{{
			Key:   headers.KeyAuthorization,
			Value: "Basic " + base64.StdEncoding.EncodeToString([]byte(creds)),
		}}, nil, nil

	case types.AuthBearer:
		token := strings.TrimSpace(get("token"))
		if token == "" {
			return auth.Type, params, nil, nil, nil
		}
		return auth.Type, params, []headers.Entry{{
			Key:   headers.KeyAuthorization,
			Value: "Bearer " + token,
		}}, nil, nil

	case types.AuthAPIKey:
		key := get("key")
		if strings.TrimSpace(key) == "" {
			return "", nil, nil, nil, failf("apikey auth requires a key")
		}
		switch strings.ToLower(get("in")) {
		case "", "header":
			return auth.Type, params, []headers.Entry{{Key: key, Value: get("value")}}, nil, nil
		case "query":
			return auth.Type, params, nil, []queryParam{{key: key, value: get("value")}}, nil
		default:
			return "", nil, nil, nil, failf("apikey auth: unsupported location %q", get("in"))
		}

	default:
		return "", nil, nil, nil, failf("unsupported auth type %q", auth.Type)
	}
}
