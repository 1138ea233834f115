package live

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client messages of the BidiGenerateContent stream.

type clientMessage struct {
	Setup         *setupMessage         `json:"setup,omitempty"`
	RealtimeInput *realtimeInputMessage `json:"realtimeInput,omitempty"`
}

type setupMessage struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

// Server messages.

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func encodeSetup(s Setup) ([]byte, error) {
	modality := s.ResponseModality
	if modality == "" {
		modality = "AUDIO"
	}

	model := s.Model
	if model != "" && !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	msg := &setupMessage{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{modality},
		},
	}
	if s.Voice != "" {
		msg.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: s.Voice}},
		}
	}
	if s.Instruction != "" {
		msg.SystemInstruction = &content{Parts: []part{{Text: s.Instruction}}}
	}
	if s.InputTranscription {
		msg.InputAudioTranscription = &struct{}{}
	}
	if s.OutputTranscription {
		msg.OutputAudioTranscription = &struct{}{}
	}

	return json.Marshal(clientMessage{Setup: msg})
}

func encodeMedia(m Media) ([]byte, error) {
	return json.Marshal(clientMessage{
		RealtimeInput: &realtimeInputMessage{
			MediaChunks: []inlineData{{MIMEType: m.MIMEType, Data: m.Data}},
		},
	})
}

func decodeServerMessage(data []byte) (serverMessage, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return serverMessage{}, fmt.Errorf("failed to decode server message: %w", err)
	}
	return msg, nil
}

// events fans one server message out in a fixed order: audio, interrupted,
// input transcription, output transcription, turn complete.
func (m serverMessage) events() []Event {
	sc := m.ServerContent
	if sc == nil {
		return nil
	}

	var out []Event
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if mt := p.InlineData.MIMEType; mt != "" && !strings.HasPrefix(mt, "audio/") {
				continue
			}
			out = append(out, Event{Kind: EventAudio, Data: p.InlineData.Data})
		}
	}
	if sc.Interrupted {
		out = append(out, Event{Kind: EventInterrupted})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		out = append(out, Event{Kind: EventInputTranscription, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		out = append(out, Event{Kind: EventOutputTranscription, Text: sc.OutputTranscription.Text})
	}
	if sc.TurnComplete {
		out = append(out, Event{Kind: EventTurnComplete})
	}
	return out
}
