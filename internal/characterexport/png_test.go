package characterexport

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/models"
)

func TestExport_ProducesValidOpaquePNGOfSpecSize(t *testing.T) {
	card := &models.CharacterCard{
		Name:            "Sonya Blackwood",
		Description:     "A retired lighthouse keeper.",
		Persona:         "Quiet, observant, dryly funny.",
		Scenario:        "Meeting at the edge of a storm.",
		FirstMessage:    "The wind's picking up. You should come inside.",
		ExampleMessages: "{{user}}: Why stay out here alone?\n{{char}}: Someone has to watch the light.",
	}

	out, err := Export(card)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, pngSignature))

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.Equal(t, cardWidth, bounds.Dx())
	assert.Equal(t, cardHeight, bounds.Dy())

	_, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a, "exported card must be fully opaque")
}

func TestExport_EmbedsRecoverableCharaChunk(t *testing.T) {
	card := &models.CharacterCard{
		Name:            "Arden",
		Description:     "desc",
		Persona:         "persona",
		Scenario:        "scenario",
		FirstMessage:    "hello",
		ExampleMessages: "examples",
	}

	out, err := Export(card)
	require.NoError(t, err)

	encoded := extractCharaChunk(t, out)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var parsed charaCardV2
	require.NoError(t, json.Unmarshal(decoded, &parsed))
	assert.Equal(t, specValue, parsed.Spec)
	assert.Equal(t, "Arden", parsed.Data.Name)
	assert.Equal(t, "desc", parsed.Data.Description)
	assert.Equal(t, "persona", parsed.Data.Personality)
	assert.Equal(t, "hello", parsed.Data.FirstMes)
}

// extractCharaChunk walks the PNG chunk structure to pull out the "chara"
// tEXt chunk's payload, verifying the exported PNG is well-formed enough
// for a real reader (such as original_source's card_extractor.py) to find
// the chunk by its length-prefixed framing rather than a byte-offset guess.
func extractCharaChunk(t *testing.T, pngBytes []byte) string {
	t.Helper()
	pos := 8 // past the 8-byte PNG signature
	for pos+8 <= len(pngBytes) {
		length := binary.BigEndian.Uint32(pngBytes[pos : pos+4])
		chunkType := string(pngBytes[pos+4 : pos+8])
		dataStart := pos + 8
		dataEnd := dataStart + int(length)
		require.LessOrEqual(t, dataEnd, len(pngBytes))

		if chunkType == "tEXt" {
			data := pngBytes[dataStart:dataEnd]
			if key, value, ok := strings.Cut(string(data), "\x00"); ok && key == "chara" {
				return value
			}
		}
		pos = dataEnd + 4 // skip the trailing CRC
	}
	require.Fail(t, "chara tEXt chunk not found")
	return ""
}

func TestExport_RejectsCorruptPNGInput(t *testing.T) {
	_, err := spliceTextChunk([]byte("not a png"), "chara", "data")
	assert.Error(t, err)
}
