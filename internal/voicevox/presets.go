package voicevox

// EmotionParams are the VOICEVOX scale parameters applied per emotion.
type EmotionParams struct {
	Speed      float64
	Pitch      float64
	Intonation float64
	Volume     float64
}

// emotionPresets maps emotion tags to their voice coloring. Unknown
// emotions fall back to "normal".
var emotionPresets = map[string]EmotionParams{
	"normal":    {Speed: 1.0, Pitch: 0.0, Intonation: 1.0, Volume: 1.0},
	"happy":     {Speed: 1.05, Pitch: 0.06, Intonation: 1.3, Volume: 1.0},
	"sad":       {Speed: 0.9, Pitch: -0.05, Intonation: 0.9, Volume: 0.95},
	"surprised": {Speed: 1.2, Pitch: 0.12, Intonation: 1.5, Volume: 1.0},
	"worried":   {Speed: 0.95, Pitch: -0.03, Intonation: 0.9, Volume: 1.0},
	"serious":   {Speed: 0.95, Pitch: -0.01, Intonation: 1.1, Volume: 1.0},
	"relieved":  {Speed: 0.9, Pitch: -0.06, Intonation: 1.1, Volume: 1.0},
	"sleepy":    {Speed: 0.8, Pitch: -0.09, Intonation: 0.8, Volume: 0.9},
	"scared":    {Speed: 0.9, Pitch: -0.05, Intonation: 0.85, Volume: 1.0},
}

// ParamsForEmotion returns the voice parameters for an emotion tag.
func ParamsForEmotion(emotion string) EmotionParams {
	if p, ok := emotionPresets[emotion]; ok {
		return p
	}
	return emotionPresets["normal"]
}

// PresetSoundForEmotion maps emotions to their short reaction sound file,
// or "" when the emotion has none.
func PresetSoundForEmotion(emotion string) string {
	switch emotion {
	case "surprised":
		return "kya.wav"
	case "worried", "sad":
		return "sigh.wav"
	case "scared":
		return "scream.wav"
	case "sleepy":
		return "funya.wav"
	default:
		return ""
	}
}
