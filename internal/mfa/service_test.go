package mfa

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jalgreatworks0/clientforge-auth/internal/cache/memory"
	"github.com/jalgreatworks0/clientforge-auth/internal/metrics"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/secretbox"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/totp"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/storetest"
)

func newTestService(t *testing.T) (*Service, *storetest.FakeRepo, *core.User) {
	t.Helper()
	secretbox.UnsafeResetForTests()
	require.NoError(t, secretbox.UnsafeSetKeyForTests([]byte("0123456789abcdef0123456789abcdef")))

	repo := storetest.New()
	u := &core.User{TenantID: "t1", Email: "ana@acme.com", Name: "Ana"}
	require.NoError(t, repo.CreateUserWithIdentity(context.Background(), u, &core.SSOIdentity{
		Provider: core.ProviderGoogle, ProviderUserID: "g-1", Email: u.Email,
	}))

	svc := NewService(repo, memory.New("test:", time.Minute), nil, Config{
		Issuer:       "TestApp",
		Window:       1,
		ChallengeTTL: time.Minute,
	})
	return svc, repo, u
}

// codeAt calcula el código TOTP esperado para un instante dado.
func codeAt(t *testing.T, secretB32 string, at time.Time) string {
	t.Helper()
	secret, err := totp.DecodeSecret(secretB32)
	require.NoError(t, err)

	counter := uint64(at.Unix() / totp.Period)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	v := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", v%1_000_000)
}

func TestSetupConfirmAndAntiReplay(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	enr, err := svc.SetupTOTP(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, enr.Secret)
	require.Contains(t, enr.OTPAuthURL, "otpauth://totp/")
	require.Contains(t, enr.OTPAuthURL, "TestApp")

	st, err := svc.Status(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, st.TOTPEnabled)
	require.True(t, st.TOTPPending)

	code := codeAt(t, enr.Secret, time.Now())
	require.NoError(t, svc.VerifyTOTP(ctx, u.ID, code))

	st, err = svc.Status(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, st.TOTPEnabled)
	require.False(t, st.TOTPPending)

	// replay del mismo código dentro de la misma ventana
	err = svc.VerifyTOTP(ctx, u.ID, code)
	require.ErrorIs(t, err, ErrBadCode)
}

func TestSetupRejectsWhenConfirmed(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	enr, err := svc.SetupTOTP(ctx, u)
	require.NoError(t, err)
	require.NoError(t, svc.VerifyTOTP(ctx, u.ID, codeAt(t, enr.Secret, time.Now())))

	_, err = svc.SetupTOTP(ctx, u)
	require.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestVerifyErrors(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.VerifyTOTP(ctx, u.ID, "123456"), ErrNotEnrolled)

	enr, err := svc.SetupTOTP(ctx, u)
	require.NoError(t, err)
	require.ErrorIs(t, svc.VerifyTOTP(ctx, u.ID, "000000"), ErrBadCode)
	require.ErrorIs(t, svc.VerifyTOTP(ctx, u.ID, "no-num"), ErrBadCode)

	// un código válido viejo (fuera de la ventana) tampoco pasa
	old := codeAt(t, enr.Secret, time.Now().Add(-10*time.Minute))
	require.ErrorIs(t, svc.VerifyTOTP(ctx, u.ID, old), ErrBadCode)
}

func TestBackupCodesLifecycle(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	_, err := svc.GenerateBackupCodes(ctx, u)
	require.ErrorIs(t, err, ErrNotEnrolled)

	enr, err := svc.SetupTOTP(ctx, u)
	require.NoError(t, err)
	_, err = svc.GenerateBackupCodes(ctx, u)
	require.ErrorIs(t, err, ErrNotConfirmed)

	require.NoError(t, svc.VerifyTOTP(ctx, u.ID, codeAt(t, enr.Secret, time.Now())))
	codes, err := svc.GenerateBackupCodes(ctx, u)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	require.NoError(t, svc.VerifyBackupCode(ctx, u.ID, codes[0]))
	// un código solo quema una vez
	require.ErrorIs(t, svc.VerifyBackupCode(ctx, u.ID, codes[0]), ErrBadCode)

	st, err := svc.Status(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 9, st.BackupCodesRemaining)

	// el formato es tolerante a minúsculas y espacios
	require.NoError(t, svc.VerifyBackupCode(ctx, u.ID, " "+codes[1]+" "))
}

func TestChallengeLifecycle(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	tok, err := svc.CreateChallenge(ctx, u.ID, u.TenantID)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	ch, err := svc.PeekChallenge(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, u.ID, ch.UserID)
	require.Equal(t, u.TenantID, ch.TenantID)

	// peek no consume
	_, err = svc.PeekChallenge(ctx, tok)
	require.NoError(t, err)

	svc.DeleteChallenge(ctx, tok)
	_, err = svc.PeekChallenge(ctx, tok)
	require.ErrorIs(t, err, ErrChallengeExpired)

	_, err = svc.PeekChallenge(ctx, "no-existe")
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestDisable(t *testing.T) {
	svc, repo, u := newTestService(t)
	ctx := context.Background()

	enr, err := svc.SetupTOTP(ctx, u)
	require.NoError(t, err)
	require.NoError(t, svc.VerifyTOTP(ctx, u.ID, codeAt(t, enr.Secret, time.Now())))
	codes, err := svc.GenerateBackupCodes(ctx, u)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Disable(ctx, u, "000000"), ErrBadCode)

	// un backup code también sirve para deshabilitar, y no debe registrar
	// un intento TOTP fallido de paso
	totpFails := testutil.ToFloat64(metrics.MFAVerificationsTotal.WithLabelValues("totp", "fail"))
	require.NoError(t, svc.Disable(ctx, u, codes[0]))
	require.Equal(t, totpFails, testutil.ToFloat64(metrics.MFAVerificationsTotal.WithLabelValues("totp", "fail")))

	rec, err := repo.GetMFATOTP(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, rec)
	n, err := repo.CountUnusedBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}
