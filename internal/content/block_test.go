package content

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDefaultDataMatchesVariant(t *testing.T) {
	tests := []struct {
		blockType BlockType
		want      BlockData
	}{
		{blockType: BlockTypeText, want: TextData{}},
		{blockType: BlockTypeImage, want: ImageData{}},
		{blockType: BlockTypeGallery, want: GalleryData{URLs: []string{}}},
		{blockType: BlockTypeCode, want: CodeData{Language: "plaintext"}},
		{blockType: BlockTypeCTA, want: CTAData{Variant: CTAVariantPrimary}},
		{blockType: BlockTypeEmbed, want: EmbedData{Provider: EmbedProviderYouTube}},
	}

	for _, tt := range tests {
		t.Run(string(tt.blockType), func(t *testing.T) {
			data, err := DefaultData(tt.blockType)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if data.BlockType() != tt.blockType {
				t.Fatalf("expected %s payload, got %s", tt.blockType, data.BlockType())
			}
			if !reflect.DeepEqual(data, tt.want) {
				t.Fatalf("unexpected default %#v", data)
			}
		})
	}
}

func TestDefaultDataRejectsUnknownType(t *testing.T) {
	_, err := DefaultData(BlockType("video"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGalleryDefaultSerializesAsEmptyList(t *testing.T) {
	data, _ := DefaultData(BlockTypeGallery)
	encoded, err := json.Marshal(Block{ID: "g-1", Data: data})
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	expected := `{"id":"g-1","type":"gallery","data":{"urls":[]}}`
	if string(encoded) != expected {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	original := Document{
		ID:     "doc-1",
		Kind:   "post",
		Title:  "Hello",
		Slug:   "hello-world",
		Status: StatusPublished,
		Blocks: []Block{
			{ID: "b1", Data: TextData{Text: "intro"}},
			{ID: "b2", Data: ImageData{URL: "https://cdn/x.png", Caption: "x"}},
			{ID: "b3", Data: GalleryData{URLs: []string{"https://cdn/a.png", "https://cdn/b.png"}}},
			{ID: "b4", Data: CodeData{Code: "fmt.Println()", Language: "go"}},
			{ID: "b5", Data: CTAData{Text: "Hire me", Link: "mailto:me", Variant: CTAVariantSecondary}},
			{ID: "b6", Data: EmbedData{URL: "https://vimeo.com/1", Provider: EmbedProviderVimeo}},
		},
		CreatedAt: fixedClock(),
		UpdatedAt: fixedClock(),
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if decoded.Title != original.Title || decoded.Slug != original.Slug || decoded.Status != original.Status {
		t.Fatalf("metadata mismatch: %+v", decoded)
	}
	if !reflect.DeepEqual(decoded.Blocks, original.Blocks) {
		t.Fatalf("blocks mismatch:\nwant %#v\ngot  %#v", original.Blocks, decoded.Blocks)
	}
}

func TestBlockUnmarshalKeepsDefaultsForMissingKeys(t *testing.T) {
	var block Block
	if err := json.Unmarshal([]byte(`{"id":"c1","type":"cta","data":{"text":"Go"}}`), &block); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := block.Data.(CTAData)
	if !ok {
		t.Fatalf("expected cta data, got %T", block.Data)
	}
	if data.Text != "Go" || data.Variant != CTAVariantPrimary {
		t.Fatalf("unexpected cta data %#v", data)
	}
}

func TestBlockUnmarshalRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown-type", body: `{"id":"x","type":"video","data":{}}`},
		{name: "foreign-field", body: `{"id":"x","type":"text","data":{"url":"https://x"}}`},
		{name: "bad-enum", body: `{"id":"x","type":"embed","data":{"provider":"dailymotion"}}`},
		{name: "wrong-shape", body: `{"id":"x","type":"gallery","data":{"urls":"one"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var block Block
			err := json.Unmarshal([]byte(tt.body), &block)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodePatchBuildsTypedPatch(t *testing.T) {
	patch, err := DecodePatch(BlockTypeImage, []byte(`{"caption":"sunset"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imagePatch, ok := patch.(ImagePatch)
	if !ok {
		t.Fatalf("expected image patch, got %T", patch)
	}
	if imagePatch.URL != nil {
		t.Fatalf("absent key must stay nil")
	}
	if imagePatch.Caption == nil || *imagePatch.Caption != "sunset" {
		t.Fatalf("unexpected caption %v", imagePatch.Caption)
	}

	if _, err := DecodePatch(BlockTypeText, []byte(`{"caption":"x"}`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for foreign key, got %v", err)
	}
}
