package cfg

import (
	"app/internal/app/api"
	"app/internal/app/history"
	"app/internal/app/localserver"
	"app/pkg/ai"
)

type Config struct {
	Api api.Config `yaml:"api"`

	// DataDir holds the settings/voices documents, the history db and the
	// generated audio output
	DataDir string `yaml:"data_dir"`

	Local localserver.Config `yaml:"local"`

	LocalTTS   ai.LocalConfig      `yaml:"local_tts"`
	ElevenLabs ai.ElevenLabsConfig `yaml:"elevenlabs"`
	OpenAI     ai.OpenAIConfig     `yaml:"openai"`
	PlayHT     ai.PlayHTConfig     `yaml:"playht"`
	Kokoro     ai.KokoroConfig     `yaml:"kokoro"`

	History history.Config `yaml:"history"`
}
