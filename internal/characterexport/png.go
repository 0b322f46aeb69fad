// Package characterexport implements §6's PNG character-card export: the
// inverse of original_source/server/src/utils/card_extractor.py's PNG-read
// direction, which is out of scope. No library in the pack exposes a
// tEXt-chunk write hook, so the chunk is appended manually after encoding
// the placeholder image with the standard library (justified in
// DESIGN.md).
package characterexport

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"

	"github.com/revivalist/lorecard/internal/models"
)

const (
	cardWidth  = 600
	cardHeight = 900
	specValue  = "chara_card_v2"
)

// charaCardV2 mirrors the subset of the chara_card_v2 wire format this
// module produces; original_source's extractor reads the same shape back
// out under `data`.
type charaCardV2 struct {
	Spec        string      `json:"spec"`
	SpecVersion string      `json:"spec_version"`
	Data        charaV2Data `json:"data"`
}

type charaV2Data struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Personality       string `json:"personality"`
	Scenario          string `json:"scenario"`
	FirstMes          string `json:"first_mes"`
	MesExample        string `json:"mes_example"`
	CreatorNotes      string `json:"creator_notes"`
	SystemPrompt      string `json:"system_prompt"`
	PostHistoryInstr  string `json:"post_history_instructions"`
	AlternateGreetings []string `json:"alternate_greetings"`
	Tags              []string `json:"tags"`
	Creator           string `json:"creator"`
	CharacterVersion  string `json:"character_version"`
}

// Export renders card as a 600x900 opaque PNG with a `chara` tEXt chunk
// holding base64-encoded chara_card_v2 JSON.
func Export(card *models.CharacterCard) ([]byte, error) {
	payload := charaCardV2{
		Spec:        specValue,
		SpecVersion: "2.0",
		Data: charaV2Data{
			Name:               card.Name,
			Description:        card.Description,
			Personality:        card.Persona,
			Scenario:           card.Scenario,
			FirstMes:           card.FirstMessage,
			MesExample:         card.ExampleMessages,
			AlternateGreetings: []string{},
			Tags:               []string{},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chara_card_v2: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	img := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	background := color.RGBA{R: 32, G: 32, B: 36, A: 255}
	for y := 0; y < cardHeight; y++ {
		for x := 0; x < cardWidth; x++ {
			img.SetRGBA(x, y, background)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return spliceTextChunk(buf.Bytes(), "chara", encoded)
}

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
var iendType = []byte("IEND")

// spliceTextChunk inserts a tEXt chunk named key, holding text, immediately
// before the IEND chunk of an already-encoded PNG byte stream.
func spliceTextChunk(pngBytes []byte, key, text string) ([]byte, error) {
	if len(pngBytes) < 8 || !bytes.Equal(pngBytes[:8], pngSignature) {
		return nil, fmt.Errorf("not a valid PNG stream")
	}

	// IEND's length field is always zero, but matching that 4-byte prefix
	// is fragile against coincidental matches earlier in the stream;
	// locate IEND by its type marker and re-derive the chunk start from
	// the 4 length bytes that precede it.
	typeOffset := bytes.LastIndex(pngBytes, iendType)
	if typeOffset < 8 {
		return nil, fmt.Errorf("IEND chunk not found")
	}
	iendOffset := typeOffset - 4

	chunkData := append([]byte(key), 0)
	chunkData = append(chunkData, []byte(text)...)

	chunk := encodeChunk("tEXt", chunkData)

	out := make([]byte, 0, len(pngBytes)+len(chunk))
	out = append(out, pngBytes[:iendOffset]...)
	out = append(out, chunk...)
	out = append(out, pngBytes[iendOffset:]...)
	return out, nil
}

func encodeChunk(chunkType string, data []byte) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	typeAndData := append([]byte(chunkType), data...)
	crc := crc32.ChecksumIEEE(typeAndData)
	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crc)

	chunk := make([]byte, 0, 4+len(typeAndData)+4)
	chunk = append(chunk, length...)
	chunk = append(chunk, typeAndData...)
	chunk = append(chunk, crcBytes...)
	return chunk
}
