package tts

import (
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/stretchr/testify/assert"

	"github.com/nanooro/dagnerai/domain"
)

func TestSynthesisRequest(t *testing.T) {
	req := synthesisRequest("ja-JP", domain.VoiceMale, "...Hello.")

	assert.Equal(t, "...Hello.", req.GetInput().GetText())
	assert.Equal(t, "ja-JP", req.GetVoice().GetLanguageCode())
	assert.Equal(t, texttospeechpb.SsmlVoiceGender_MALE, req.GetVoice().GetSsmlGender())
	assert.Equal(t, texttospeechpb.AudioEncoding_MP3, req.GetAudioConfig().GetAudioEncoding())
}

func TestSsmlGender(t *testing.T) {
	assert.Equal(t, texttospeechpb.SsmlVoiceGender_FEMALE, ssmlGender(domain.VoiceFemale))
	assert.Equal(t, texttospeechpb.SsmlVoiceGender_NEUTRAL, ssmlGender(domain.VoiceNeutral))
	assert.Equal(t, texttospeechpb.SsmlVoiceGender_NEUTRAL, ssmlGender(""))
}
