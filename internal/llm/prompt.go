package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

const textSystemPrompt = "You extract structured document data."

const visionSystemPrompt = "You are a data extraction assistant. Extract information from images and return JSON."

// buildTextPrompt asks for schema-shaped JSON from OCR text, including the
// OCR error-correction hints that matter for handwritten survey forms.
func buildTextPrompt(ocrText string, s entity.Schema) string {
	fields := strings.Join(s.Keys(), ", ")
	var b strings.Builder
	b.WriteString("Extract the following fields from the OCR text below.\n\n")
	b.WriteString("Fields:\n")
	b.WriteString(fields)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Return ONLY valid JSON\n")
	b.WriteString("- Keys must EXACTLY match the field names\n")
	b.WriteString("- If a value is missing, use null\n")
	b.WriteString("- Do NOT add extra keys\n")
	b.WriteString("- Do NOT use markdown or explanation\n\n")
	b.WriteString("OCR Error Correction (IMPORTANT):\n")
	b.WriteString("- The text comes from OCR which may have errors\n")
	b.WriteString("- Common OCR mistakes: 'l' misread as 'i' or '1', 'O' as '0', 'rn' as 'm'\n")
	b.WriteString("- Use context and common sense to fix obvious OCR errors in names\n\n")
	b.WriteString("Text:\n\"\"\"\n")
	b.WriteString(ocrText)
	b.WriteString("\n\"\"\"")
	return b.String()
}

// buildVisionPrompt asks for schema-shaped JSON directly from an image. The
// rules lean hard against hallucination: handwritten forms tempt models into
// inventing plausible values.
func buildVisionPrompt(s entity.Schema) string {
	fields := strings.Join(s.Keys(), ", ")
	var b strings.Builder
	b.WriteString("Look at this image and extract the following fields.\n\n")
	b.WriteString("Fields to extract:\n")
	b.WriteString(fields)
	b.WriteString("\n\nCRITICAL RULES:\n")
	b.WriteString("- Return ONLY valid JSON\n")
	b.WriteString("- Keys must EXACTLY match the field names above\n")
	b.WriteString("- ONLY extract values that are ACTUALLY WRITTEN in the image\n")
	b.WriteString("- If a field's value is NOT VISIBLE in the image, you MUST return null\n")
	b.WriteString("- Do NOT guess, infer, or make up values\n")
	b.WriteString("- Do NOT add extra keys\n")
	b.WriteString("- Do NOT use markdown or explanation\n")
	b.WriteString("- Read ALL handwritten or printed text carefully\n")
	b.WriteString("- The image may contain text in any language (English, Bengali, Arabic, Hindi, etc.)\n")
	b.WriteString("- If the image is rotated or upside down, read it correctly\n\n")
	b.WriteString("IMPORTANT: Only return what you can actually SEE written in the image. Never invent answers.")
	return b.String()
}

// readImageBase64 loads an image and returns its base64 payload and MIME type.
func readImageBase64(imagePath string) (data, mimeType string, err error) {
	b, err := os.ReadFile(imagePath)
	if err != nil {
		return "", "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), constants.ImageMIMEType(imagePath), nil
}
