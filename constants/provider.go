package constants

// OCREngineName names a configured OCR engine. EngineNone is a valid choice
// meaning "skip OCR and extract from the image directly".
type OCREngineName string

const (
	EngineNone   OCREngineName = "none"
	EngineGoogle OCREngineName = "google"
	EngineAzure  OCREngineName = "azure"
	EngineCustom OCREngineName = "custom"
	EngineLocal  OCREngineName = "local"
)

// OCREngineNames lists the valid engine names, used in error messages.
var OCREngineNames = []OCREngineName{EngineNone, EngineGoogle, EngineAzure, EngineCustom, EngineLocal}

// AIProviderName names an LLM extraction provider. There is no "none": an
// extraction provider is always required.
type AIProviderName string

const (
	ProviderOpenAI    AIProviderName = "openai"
	ProviderAnthropic AIProviderName = "anthropic"
	ProviderGemini    AIProviderName = "google"
	ProviderCustom    AIProviderName = "custom"
)

// AIProviderNames lists the valid extraction provider names.
var AIProviderNames = []AIProviderName{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderCustom}
