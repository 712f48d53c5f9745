package guest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestImageID_BytesAreLittleEndianWords(t *testing.T) {
	id := ImageID{0x04030201, 0, 0, 0, 0, 0, 0, 0xddccbbaa}
	b := id.Bytes()
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b[:4])
	require.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, b[28:])
	require.Equal(t, "01020304"+strings.Repeat("00", 24)+"aabbccdd", id.Hex())
	require.Equal(t, common.BytesToHash(b[:]), id.Hash())
}

func TestParseImageID_RoundTrip(t *testing.T) {
	id := ImageID{1, 2, 3, 4, 5, 6, 7, 0xffffffff}

	parsed, err := ParseImageID("0x" + id.Hex())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	parsed, err = ParseImageID(strings.ToUpper(id.Hex()))
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseImageID("abcd")
	require.Error(t, err)
	_, err = ParseImageID(strings.Repeat("zz", 32))
	require.Error(t, err)
}

func TestRegistry_ResolveAndOrder(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Name: "B", ImageID: ImageID{2}},
		Entry{Name: "A", ImageID: ImageID{1}},
		Entry{Name: "C", ImageID: ImageID{3}},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A", "C"}, reg.Names())
	require.Equal(t, 3, reg.Len())

	e, err := reg.Resolve("A")
	require.NoError(t, err)
	require.Equal(t, ImageID{1}, e.ImageID)

	_, err = reg.Resolve("missing")
	require.ErrorIs(t, err, ErrUnknownGuest)
}

func TestRegistry_EntriesIsACopy(t *testing.T) {
	reg, err := NewRegistry(Entry{Name: "A"})
	require.NoError(t, err)
	entries := reg.Entries()
	entries[0].Name = "mutated"
	require.Equal(t, []string{"A"}, reg.Names())
}

func TestNewRegistry_RejectsDuplicatesAndEmptyNames(t *testing.T) {
	_, err := NewRegistry(Entry{Name: "A"}, Entry{Name: "A"})
	require.Error(t, err)

	_, err = NewRegistry(Entry{Name: " "})
	require.Error(t, err)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "votes.elf"), []byte{0x7f, 'E', 'L', 'F'}, 0o600))

	id := ImageID{0xdeadbeef, 1, 2, 3, 4, 5, 6, 7}
	manifest := "guests:\n" +
		"  - name: FINALIZE_VOTES\n" +
		"    image_id: " + id.Hex() + "\n" +
		"    elf: votes.elf\n"
	path := filepath.Join(dir, "guests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	reg, err := LoadManifest(path)
	require.NoError(t, err)

	e, err := reg.Resolve("FINALIZE_VOTES")
	require.NoError(t, err)
	require.Equal(t, id, e.ImageID)
	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, e.ELF)
}

func TestLoadManifest_MissingELF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guests.yaml")
	manifest := "guests:\n  - name: X\n    image_id: " + strings.Repeat("00", 32) + "\n    elf: nope.elf\n"
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Name: "A", ImageID: ImageID{1}},
		Entry{Name: "B", ImageID: ImageID{2}},
	)
	require.NoError(t, err)

	e, err := reg.Lookup(ImageID{2})
	require.NoError(t, err)
	require.Equal(t, "B", e.Name)

	_, err = reg.Lookup(ImageID{9})
	require.ErrorIs(t, err, ErrUnknownGuest)
}
