package oidc

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/identra/identra/pkg/domain"
)

var jarKey = []byte("0123456789abcdef0123456789abcdef")

func signJAR(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jarKey)
	if err != nil {
		t.Fatalf("sign request object: %v", err)
	}
	return signed
}

func unsignedJAR(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("encode request object: %v", err)
	}
	return signed
}

func baseClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":           "c1",
		"aud":           "https://idp/",
		"iat":           now.Add(-100 * time.Second).Unix(),
		"response_type": "code",
		"redirect_uri":  "https://app/cb",
		"scope":         "openid profile",
		"state":         "xyz",
	}
}

func testVerifier(now time.Time) *JARVerifier {
	return &JARVerifier{
		ExpectedClientID: "c1",
		ExpectedAudience: "https://idp/",
		RequireSignature: true,
		Key:              jarKey,
		now:              func() time.Time { return now },
	}
}

func assertJARCode(t *testing.T, err error, code string) {
	t.Helper()
	var derr *domain.Error
	if !errors.As(err, &derr) {
		t.Fatalf("want domain error %s, got %v", code, err)
	}
	if derr.Code != code {
		t.Fatalf("code = %s, want %s", derr.Code, code)
	}
	if derr.Kind != domain.KindInvalidArgument {
		t.Fatalf("kind = %v, want invalid argument", derr.Kind)
	}
}

func TestJARVerify(t *testing.T) {
	now := time.Now()

	t.Run("Valid", func(t *testing.T) {
		params, err := testVerifier(now).Verify(signJAR(t, baseClaims(now)))
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if params.ClientID != "c1" || params.ResponseType != "code" || params.RedirectURI != "https://app/cb" {
			t.Fatalf("params = %+v", params)
		}
		if len(params.Scopes) != 2 || params.Scopes[0] != "openid" {
			t.Fatalf("scopes = %v", params.Scopes)
		}
	})

	t.Run("NotAJWT", func(t *testing.T) {
		_, err := testVerifier(now).Verify("only.two")
		assertJARCode(t, err, "JAR-000")
	})

	t.Run("UnsignedRejectedWhenRequired", func(t *testing.T) {
		_, err := testVerifier(now).Verify(unsignedJAR(t, baseClaims(now)))
		assertJARCode(t, err, "JAR-001")
	})

	t.Run("UnsignedAcceptedWhenNotRequired", func(t *testing.T) {
		v := testVerifier(now)
		v.RequireSignature = false
		params, err := v.Verify(unsignedJAR(t, baseClaims(now)))
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if params.ClientID != "c1" {
			t.Fatalf("params = %+v", params)
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		v := testVerifier(now)
		v.Key = nil
		_, err := v.Verify(signJAR(t, baseClaims(now)))
		assertJARCode(t, err, "JAR-002")
	})

	t.Run("BadSignature", func(t *testing.T) {
		v := testVerifier(now)
		v.Key = []byte("another-key-entirely-0123456789a")
		_, err := v.Verify(signJAR(t, baseClaims(now)))
		assertJARCode(t, err, "JAR-002")
	})

	t.Run("MissingIssuer", func(t *testing.T) {
		claims := baseClaims(now)
		delete(claims, "iss")
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-003")
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		claims := baseClaims(now)
		claims["iss"] = "c2"
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-004")
	})

	t.Run("MissingAudience", func(t *testing.T) {
		claims := baseClaims(now)
		delete(claims, "aud")
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-005")
	})

	t.Run("WrongAudience", func(t *testing.T) {
		claims := baseClaims(now)
		claims["aud"] = []string{"https://other/"}
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-006")
	})

	t.Run("MissingIssuedAt", func(t *testing.T) {
		claims := baseClaims(now)
		delete(claims, "iat")
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-007")
	})

	t.Run("IssuedInFuture", func(t *testing.T) {
		claims := baseClaims(now)
		claims["iat"] = now.Add(time.Hour).Unix()
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-008")
	})

	t.Run("TooOld", func(t *testing.T) {
		claims := baseClaims(now)
		claims["iat"] = now.Add(-2 * time.Hour).Unix()
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-009")
	})

	t.Run("Expired", func(t *testing.T) {
		claims := baseClaims(now)
		claims["exp"] = now.Add(-time.Minute).Unix()
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-010")
	})

	t.Run("MissingResponseType", func(t *testing.T) {
		claims := baseClaims(now)
		delete(claims, "response_type")
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-011")
	})

	t.Run("MissingRedirectURI", func(t *testing.T) {
		claims := baseClaims(now)
		delete(claims, "redirect_uri")
		_, err := testVerifier(now).Verify(signJAR(t, claims))
		assertJARCode(t, err, "JAR-012")
	})

	t.Run("ClientIDDefaultsToIssuer", func(t *testing.T) {
		params, err := testVerifier(now).Verify(signJAR(t, baseClaims(now)))
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if params.ClientID != "c1" {
			t.Fatalf("client id = %s, want iss", params.ClientID)
		}
	})
}

func TestResolveParams(t *testing.T) {
	now := time.Now()

	t.Run("RequestURIRejected", func(t *testing.T) {
		values := url.Values{"request_uri": {"https://cdn.example.com/jar"}}
		_, err := testVerifier(now).ResolveParams(values)
		assertJARCode(t, err, "JAR-014")
	})

	t.Run("JAROverridesQuery", func(t *testing.T) {
		claims := baseClaims(now)
		values := url.Values{
			"client_id":     {"spoofed"},
			"redirect_uri":  {"https://spoofed/cb"},
			"response_type": {"token"},
			"nonce":         {"query-nonce"},
			"request":       {signJAR(t, claims)},
		}
		params, err := testVerifier(now).ResolveParams(values)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if params.ClientID != "c1" || params.RedirectURI != "https://app/cb" || params.ResponseType != "code" {
			t.Fatalf("JAR fields must win: %+v", params)
		}
		// Fields absent from the JAR keep their query values.
		if params.Nonce != "query-nonce" {
			t.Fatalf("nonce = %s, want query value", params.Nonce)
		}
	})

	t.Run("QueryOnly", func(t *testing.T) {
		values := url.Values{
			"client_id":     {"c1"},
			"redirect_uri":  {"https://app/cb"},
			"response_type": {"code"},
			"scope":         {"openid"},
		}
		params, err := testVerifier(now).ResolveParams(values)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if params.ClientID != "c1" || len(params.Scopes) != 1 {
			t.Fatalf("params = %+v", params)
		}
	})
}
