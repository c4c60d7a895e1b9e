package types

// VoiceOption 描述一个可供机器人选择的 Deepgram Aura 语音。
type VoiceOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Accent string `json:"accent"`
}

// ModelOption 描述一个可供机器人选择的 Gemini 模型。
type ModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultVoiceID 是未显式配置语音时使用的语音标识。
const DefaultVoiceID = "aura-asteria-en"

// DefaultModel 是未显式配置模型时使用的模型标识。
const DefaultModel = "gemini-1.5-flash"

var voiceOptions = []VoiceOption{
	{ID: "aura-asteria-en", Name: "Asteria", Gender: "Female", Accent: "American"},
	{ID: "aura-luna-en", Name: "Luna", Gender: "Female", Accent: "American"},
	{ID: "aura-stella-en", Name: "Stella", Gender: "Female", Accent: "American"},
	{ID: "aura-athena-en", Name: "Athena", Gender: "Female", Accent: "British"},
	{ID: "aura-hera-en", Name: "Hera", Gender: "Female", Accent: "American"},
	{ID: "aura-orion-en", Name: "Orion", Gender: "Male", Accent: "American"},
	{ID: "aura-arcas-en", Name: "Arcas", Gender: "Male", Accent: "American"},
	{ID: "aura-perseus-en", Name: "Perseus", Gender: "Male", Accent: "American"},
	{ID: "aura-angus-en", Name: "Angus", Gender: "Male", Accent: "Irish"},
	{ID: "aura-orpheus-en", Name: "Orpheus", Gender: "Male", Accent: "American"},
	{ID: "aura-helios-en", Name: "Helios", Gender: "Male", Accent: "British"},
	{ID: "aura-zeus-en", Name: "Zeus", Gender: "Male", Accent: "American"},
}

var modelOptions = []ModelOption{
	{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", Description: "Fast & efficient"},
	{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Description: "Most capable"},
	{ID: "gemini-2.0-flash-exp", Name: "Gemini 2.0 Flash", Description: "Latest model"},
}

// VoiceOptions 返回语音目录的副本。
func VoiceOptions() []VoiceOption {
	out := make([]VoiceOption, len(voiceOptions))
	copy(out, voiceOptions)
	return out
}

// ModelOptions 返回模型目录的副本。
func ModelOptions() []ModelOption {
	out := make([]ModelOption, len(modelOptions))
	copy(out, modelOptions)
	return out
}

// IsKnownVoice reports whether id is in the voice catalog.
func IsKnownVoice(id string) bool {
	for _, v := range voiceOptions {
		if v.ID == id {
			return true
		}
	}
	return false
}
