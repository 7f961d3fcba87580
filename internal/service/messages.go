package service

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessagesYAML []byte

type BotCommand struct {
	Command     string `yaml:"command"`
	Description string `yaml:"description"`
}

// Messages holds every text the bot sends. Placeholders look like {user}.
type Messages struct {
	ChatRegistered          string `yaml:"chat_registered"`
	NewRound                string `yaml:"new_round"`
	RegistrationAlreadyOpen string `yaml:"registration_already_open"`
	GameAlreadyStarted      string `yaml:"game_already_started"`
	ChatNotRegistered       string `yaml:"chat_not_registered"`

	JoinRegistrationClosed string `yaml:"join_registration_closed"`
	JoinInProgress         string `yaml:"join_in_progress"`
	Joined                 string `yaml:"joined"`
	AlreadyJoined          string `yaml:"already_joined"`
	AskToMessageBot        string `yaml:"ask_to_message_bot"`

	NoParticipants          string `yaml:"no_participants"`
	StopInProgress          string `yaml:"stop_in_progress"`
	StopCompleted           string `yaml:"stop_completed"`
	UnreachableParticipants string `yaml:"unreachable_participants"`
	NotEnoughReachable      string `yaml:"not_enough_reachable"`
	Probe                   string `yaml:"probe"`
	GiftAssignment          string `yaml:"gift_assignment"`
	GiftBudget              string `yaml:"gift_budget"`
	NotifyFailed            string `yaml:"notify_failed"`
	PairsDistributed        string `yaml:"pairs_distributed"`
	RoundClosed             string `yaml:"round_closed"`

	ResetDone    string `yaml:"reset_done"`
	ResetUnknown string `yaml:"reset_unknown"`

	GroupOnly string `yaml:"group_only"`
	NotAdmin  string `yaml:"not_admin"`

	ParticipantsHeader string `yaml:"participants_header"`
	ParticipantLine    string `yaml:"participant_line"`
	ParticipantsEmpty  string `yaml:"participants_empty"`
	BudgetLine         string `yaml:"budget_line"`
	BudgetUsage        string `yaml:"budget_usage"`
	BudgetSet          string `yaml:"budget_set"`

	SnowballNeedsReply string   `yaml:"snowball_needs_reply"`
	SnowballSelf       string   `yaml:"snowball_self"`
	SnowballBot        string   `yaml:"snowball_bot"`
	SnowballHits       []string `yaml:"snowball_hits"`
	SnowballMisses     []string `yaml:"snowball_misses"`

	UnknownCommand string `yaml:"unknown_command"`
	PrivateWelcome string `yaml:"private_welcome"`
	GenericError   string `yaml:"generic_error"`
	Help           string `yaml:"help"`

	Commands []BotCommand `yaml:"commands"`
}

func DefaultMessages() *Messages {
	m := &Messages{}
	if err := yaml.Unmarshal(defaultMessagesYAML, m); err != nil {
		panic(fmt.Sprintf("invalid embedded messages: %v", err))
	}
	return m
}

// LoadMessages reads overrides from path on top of the defaults.
// Keys missing from the file keep their default text.
func LoadMessages(path string) (*Messages, error) {
	m := DefaultMessages()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	if len(m.SnowballHits) == 0 || len(m.SnowballMisses) == 0 {
		return nil, fmt.Errorf("messages file must keep at least one snowball hit and miss phrase")
	}
	return m, nil
}

// render substitutes {key} placeholders; kv holds key, value pairs.
func render(tpl string, kv ...string) string {
	if len(kv) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
