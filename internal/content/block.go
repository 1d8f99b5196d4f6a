package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// BlockType enumerates the supported content block variants.
type BlockType string

const (
	// BlockTypeText is a paragraph of plain text.
	BlockTypeText BlockType = "text"
	// BlockTypeImage is a single image with a caption.
	BlockTypeImage BlockType = "image"
	// BlockTypeGallery is an ordered list of image URLs.
	BlockTypeGallery BlockType = "gallery"
	// BlockTypeCode is a source snippet with its language.
	BlockTypeCode BlockType = "code"
	// BlockTypeCTA is a call-to-action button.
	BlockTypeCTA BlockType = "cta"
	// BlockTypeEmbed is an embedded external player or frame.
	BlockTypeEmbed BlockType = "embed"
)

const defaultCodeLanguage = "plaintext"

var blockTypes = []BlockType{
	BlockTypeText,
	BlockTypeImage,
	BlockTypeGallery,
	BlockTypeCode,
	BlockTypeCTA,
	BlockTypeEmbed,
}

// BlockTypes returns the closed set of block variants in display order.
func BlockTypes() []BlockType {
	return slices.Clone(blockTypes)
}

// ParseBlockType validates raw input and returns a BlockType.
func ParseBlockType(raw string) (BlockType, error) {
	candidate := BlockType(raw)
	if !slices.Contains(blockTypes, candidate) {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown block type %q", raw)}
	}
	return candidate, nil
}

// CTAVariant enumerates call-to-action button styles.
type CTAVariant string

const (
	CTAVariantPrimary   CTAVariant = "primary"
	CTAVariantSecondary CTAVariant = "secondary"
)

func (v CTAVariant) valid() bool {
	return v == CTAVariantPrimary || v == CTAVariantSecondary
}

// EmbedProvider enumerates the embed sources the renderer understands.
type EmbedProvider string

const (
	EmbedProviderYouTube EmbedProvider = "youtube"
	EmbedProviderVimeo   EmbedProvider = "vimeo"
	EmbedProviderIframe  EmbedProvider = "iframe"
)

func (p EmbedProvider) valid() bool {
	return p == EmbedProviderYouTube || p == EmbedProviderVimeo || p == EmbedProviderIframe
}

// BlockData is the variant-specific payload of a Block. The set of
// implementations is closed to this package.
type BlockData interface {
	BlockType() BlockType
	cloneData() BlockData
	validate() error
}

// TextData is the payload of a text block.
type TextData struct {
	Text string `json:"text"`
}

func (TextData) BlockType() BlockType   { return BlockTypeText }
func (d TextData) cloneData() BlockData { return d }
func (TextData) validate() error        { return nil }

// ImageData is the payload of an image block.
type ImageData struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

func (ImageData) BlockType() BlockType   { return BlockTypeImage }
func (d ImageData) cloneData() BlockData { return d }
func (ImageData) validate() error        { return nil }

// GalleryData is the payload of a gallery block.
type GalleryData struct {
	URLs []string `json:"urls"`
}

func (GalleryData) BlockType() BlockType { return BlockTypeGallery }

func (d GalleryData) cloneData() BlockData {
	urls := make([]string, len(d.URLs))
	copy(urls, d.URLs)
	return GalleryData{URLs: urls}
}

func (GalleryData) validate() error { return nil }

// CodeData is the payload of a code block.
type CodeData struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func (CodeData) BlockType() BlockType   { return BlockTypeCode }
func (d CodeData) cloneData() BlockData { return d }
func (CodeData) validate() error        { return nil }

// CTAData is the payload of a call-to-action block.
type CTAData struct {
	Text    string     `json:"text"`
	Link    string     `json:"link"`
	Variant CTAVariant `json:"variant"`
}

func (CTAData) BlockType() BlockType   { return BlockTypeCTA }
func (d CTAData) cloneData() BlockData { return d }

func (d CTAData) validate() error {
	if !d.Variant.valid() {
		return &ValidationError{Field: "variant", Reason: fmt.Sprintf("unsupported cta variant %q", d.Variant)}
	}
	return nil
}

// EmbedData is the payload of an embed block.
type EmbedData struct {
	URL      string        `json:"url"`
	Provider EmbedProvider `json:"provider"`
}

func (EmbedData) BlockType() BlockType   { return BlockTypeEmbed }
func (d EmbedData) cloneData() BlockData { return d }

func (d EmbedData) validate() error {
	if !d.Provider.valid() {
		return &ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported embed provider %q", d.Provider)}
	}
	return nil
}

// DefaultData returns the initial payload for a freshly added block.
func DefaultData(blockType BlockType) (BlockData, error) {
	switch blockType {
	case BlockTypeText:
		return TextData{}, nil
	case BlockTypeImage:
		return ImageData{}, nil
	case BlockTypeGallery:
		return GalleryData{URLs: []string{}}, nil
	case BlockTypeCode:
		return CodeData{Language: defaultCodeLanguage}, nil
	case BlockTypeCTA:
		return CTAData{Variant: CTAVariantPrimary}, nil
	case BlockTypeEmbed:
		return EmbedData{Provider: EmbedProviderYouTube}, nil
	default:
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown block type %q", blockType)}
	}
}

// Block is one typed unit of content within a document.
type Block struct {
	ID   string
	Data BlockData
}

// Type reports the variant of the block, derived from its payload.
func (b Block) Type() BlockType {
	if b.Data == nil {
		return ""
	}
	return b.Data.BlockType()
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	clone := Block{ID: b.ID}
	if b.Data != nil {
		clone.Data = b.Data.cloneData()
	}
	return clone
}

type blockEnvelope struct {
	ID   string          `json:"id"`
	Type BlockType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the block as {"id","type","data"}.
func (b Block) MarshalJSON() ([]byte, error) {
	if b.Data == nil {
		return nil, fmt.Errorf("content: block %s has no data", b.ID)
	}
	data, err := json.Marshal(b.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockEnvelope{ID: b.ID, Type: b.Data.BlockType(), Data: data})
}

// UnmarshalJSON decodes a block, dispatching the payload on its type tag.
// Keys missing from the payload keep the variant defaults.
func (b *Block) UnmarshalJSON(raw []byte) error {
	var envelope blockEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	data, err := decodeData(envelope.Type, envelope.Data)
	if err != nil {
		return err
	}
	b.ID = envelope.ID
	b.Data = data
	return nil
}

func decodeData(blockType BlockType, raw json.RawMessage) (BlockData, error) {
	data, err := DefaultData(blockType)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return data, nil
	}

	switch current := data.(type) {
	case TextData:
		err = decodeStrict(raw, &current)
		data = current
	case ImageData:
		err = decodeStrict(raw, &current)
		data = current
	case GalleryData:
		err = decodeStrict(raw, &current)
		if current.URLs == nil {
			current.URLs = []string{}
		}
		data = current
	case CodeData:
		err = decodeStrict(raw, &current)
		data = current
	case CTAData:
		err = decodeStrict(raw, &current)
		data = current
	case EmbedData:
		err = decodeStrict(raw, &current)
		data = current
	}
	if err != nil {
		return nil, &ValidationError{Field: "data", Reason: fmt.Sprintf("%s block: %v", blockType, err)}
	}
	if err := data.validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func decodeStrict(raw []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func cloneBlocks(blocks []Block) []Block {
	clones := make([]Block, len(blocks))
	for index, block := range blocks {
		clones[index] = block.Clone()
	}
	return clones
}
