package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shelfwise-backend/pkg/config"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "shelfwise", ExpirationMinutes: 30}
}

func mint(t *testing.T, cfg config.JWTConfig, issuedAt time.Time, role enums.MemberRole) string {
	t.Helper()
	token, err := MintAccessToken(cfg, issuedAt, AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Email:  " reader@example.com ",
		Role:   enums.MemberRoleReader,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "reader@example.com", claims.Email)
	require.Equal(t, enums.MemberRoleReader, claims.Role)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)
	require.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenRejections(t *testing.T) {
	cfg := testJWTConfig()
	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		cfg   config.JWTConfig
		token string
		want  error
	}{
		{"tampered signature", cfg, mint(t, cfg, time.Now(), enums.MemberRoleAdmin) + "x", ErrTokenInvalid},
		{"wrong issuer", otherIssuer, mint(t, cfg, time.Now(), enums.MemberRoleReader), ErrTokenInvalid},
		{"expired", cfg, mint(t, cfg, time.Now().Add(-time.Hour), enums.MemberRoleReader), ErrTokenExpired},
		{"garbage", cfg, "not-a-jwt", ErrTokenInvalid},
	}
	for _, tt := range tests {
		_, err := ParseAccessToken(tt.cfg, tt.token)
		require.ErrorIs(t, err, tt.want, tt.name)
	}
}

func TestParseAccessTokenToleratesClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	token := mint(t, cfg, time.Now().Add(-time.Minute-10*time.Second), enums.MemberRoleReader)

	_, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
}

func TestParseAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.MemberRoleReader,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMintAccessTokenRejectsInvalidPayload(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	require.Error(t, err)
	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.MemberRoleReader})
	require.Error(t, err)
	_, err = MintAccessToken(config.JWTConfig{Secret: "s"}, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleReader})
	require.Error(t, err)
}

func TestParseAccessTokenRunsClaimsValidation(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		Role: enums.MemberRole("owner"),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
	require.Contains(t, err.Error(), "missing user id")
}
