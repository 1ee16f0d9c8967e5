package keymap

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"reev-core/internal/reeverr"
)

func TestKeyMap_SetThenResolveRoundTrips(t *testing.T) {
	km := New()
	key := solana.NewWallet().PublicKey()
	km.Set(UserWallet, key)

	resolved, err := km.Resolve(UserWallet)
	require.NoError(t, err)
	require.True(t, resolved.Equals(key))
	require.True(t, km.Has(UserWallet))
}

func TestKeyMap_ResolveUnboundPlaceholderReturnsMissingPlaceholderError(t *testing.T) {
	km := New()
	_, err := km.Resolve(Placeholder("RECIPIENT_USDC_ATA"))
	require.Error(t, err)
	require.True(t, reeverr.HasTag(err, reeverr.TagMissingPlaceholder))
}

func TestKeyMap_SetBase58RejectsInvalidPubkeys(t *testing.T) {
	km := New()
	err := km.SetBase58(UserWallet, "not-a-pubkey")
	require.Error(t, err)
	require.True(t, reeverr.HasTag(err, reeverr.TagInvalidPubkey))
	require.False(t, km.Has(UserWallet))
}

func TestKeyMap_CloneIsIndependentOfTheOriginal(t *testing.T) {
	km := New()
	km.Set(UserWallet, solana.NewWallet().PublicKey())

	clone := km.Clone()
	clone.Set(Placeholder("RECIPIENT_USDC_ATA"), solana.NewWallet().PublicKey())

	require.False(t, km.Has(Placeholder("RECIPIENT_USDC_ATA")))
	require.True(t, clone.Has(Placeholder("RECIPIENT_USDC_ATA")))
}

func TestKeyMap_ValidateRejectsTheZeroPubkey(t *testing.T) {
	km := New()
	km.Set(UserWallet, solana.PublicKey{})

	err := km.Validate()
	require.Error(t, err)
	require.True(t, reeverr.Is(err, reeverr.KindContext))
}

func TestKeyMap_ValidatePassesForWellFormedEntries(t *testing.T) {
	km := New()
	km.Set(UserWallet, solana.NewWallet().PublicKey())
	require.NoError(t, km.Validate())
}

func TestKeyMap_PlaceholdersListsEveryBoundEntry(t *testing.T) {
	km := New()
	km.Set(UserWallet, solana.NewWallet().PublicKey())
	km.Set(Placeholder("RECIPIENT_USDC_ATA"), solana.NewWallet().PublicKey())

	require.ElementsMatch(t, []Placeholder{UserWallet, "RECIPIENT_USDC_ATA"}, km.Placeholders())
}
