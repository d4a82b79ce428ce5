// Package commands parses "!command" comments against the static command tables.
package commands

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// UserPromptPrefix is put in front of every canned command prompt
const UserPromptPrefix = "You will be prompted with a comment from reddit. "

// MaxLanguageLength bounds the TRANSLATE argument
const MaxLanguageLength = 20

// Name is an upper-case command name
type Name string

// Special commands run custom logic instead of a canned prompt
const (
	Help      Name = "HELP"
	Translate Name = "TRANSLATE"
)

// Command is a canned prompt with its help text
type Command struct {
	Prompt      string
	Description string
	CodeFormat  bool
}

var special = map[Name]string{
	Help:      "This message.",
	Translate: "Translates into another language. Usage: !Translate [a language]. For example !translate Spanish [or] !translate Klingon",
}

var user = map[Name]Command{
	"ELI5": {
		Prompt:      "Tersely, explain the comment, using ELI5 techniques, as a patient teacher would.  If the comment doesn't contain concepts that need explaining, explain it anyway, using humor in an ELI5-ish way.",
		Description: "Explains like you're five.",
	},
	"TLDR": {
		Prompt:      "Summarize the main points of the comment as consicely as possible in the style of TLDR. If it's already a short comment, use humor when you make it shorter.",
		Description: "Summarizes a comment.",
	},
	"UNSLANG": {
		Prompt:      "Translate any idioms, slang, or culturally specific references in the comment into plain language. If there's no slang or idioms in the comment, humorously pretend that there is anyway, and explain something as if it were slang.",
		Description: "Translates idioms, slang, and cultural references into plain language.",
	},
	"ARGUE": {
		Prompt:      "Play devil's advocate, and attempt to refute the points in the comment. Be brief and to the point! If the comment doesn't contain any salient arguments to refute, refute the post anyway, using humor.",
		Description: "Attempts to argue against the points brought up in the comment.",
	},
	"IDEA": {
		Prompt:      "Provide a creative and unexpected insight or innovative idea related to the comment's theme. Be brief and highly creative!",
		Description: "Generates a unique idea or insight based on the comment.",
	},
	"HAIKU": {
		Prompt:      "Use that comment as inspiration to write a relevant haiku. Only output a haiku, and nothing else.",
		Description: "Writes a haiku inspired by the themes of the comment.",
		CodeFormat:  true,
	},
	"LIMERICK": {
		Prompt:      "Use that comment as inspiration to write a relevant limerick. Only output a limerick, and nothing else.",
		Description: "Writes a limerick inspired by the themes of the comment.",
		CodeFormat:  true,
	},
	"KOAN": {
		Prompt:      "Use the themes or content of the comment to create a short and enigmatic Zen koan. Be poetic!",
		Description: "Creates a Zen koan inspired by the comment.",
	},
	"DAD": {
		Prompt:      "Use that comment as inspiration to write a relevant dad joke. Only output a dad joke, and nothing else.",
		Description: "Writes a dad joke inspired by the themes of the comment.",
	},
	"WAR40K": {
		Prompt:      "Briefly respond to that comment as if you were a fervently loyal Space Marine from Warhammer 40K, with one to three sentences.",
		Description: "Provides a Space Marine perspective on things.",
	},
	"CHAOS40K": {
		Prompt:      "Briefly respond to that comment as if you were warp-addled Chaos Space Marine from Warhammer 40K, with one to three sentences.",
		Description: "Provides a Chaos Space Marine perspective on things.",
	},
	"GUNGAN": {
		Prompt:      "Rewrite that comment to Gungan-speak, as if Jar-Jar from Star Wars wrote it.",
		Description: "Jar-Jar Binks a comment.",
	},
	"DRACO": {
		Prompt:      "Briefly respond to that comment as if you were Draco Malfoy from Harry Potter.",
		Description: "Gives a Draco Malfoy perspective.",
	},
	"SHERLOCK": {
		Prompt:      "Analyze the comment as if you were Sherlock Holmes, offering a detailed, insightful, and possibly surprising observation. Be concise!",
		Description: "Sherlock Holmes analyzes the comment.",
	},
	"EMOJI": {
		Prompt:      "Express the main idea of the comment solely using emojis.",
		Description: "Converts comment into emojis.",
	},
	"HEADLINE": {
		Prompt:      "Suggest a single a sensational tabloid headline for that comment.",
		Description: "Titles a comment with a tabloid headline.",
	},
}

func init() {
	if err := validate(); err != nil {
		panic(err)
	}
}

func validName(n Name) bool {
	if n == "" {
		return false
	}
	for _, r := range string(n) {
		if unicode.IsSpace(r) || unicode.IsLower(r) {
			return false
		}
	}
	return true
}

func validate() error {
	for name, cmd := range user {
		if !validName(name) {
			return fmt.Errorf("command name %q must be upper-case without whitespace", name)
		}
		if cmd.Prompt == "" || cmd.Description == "" {
			return fmt.Errorf("command %s needs a prompt and a description", name)
		}
		if _, clash := special[name]; clash {
			return fmt.Errorf("command %s is also a special command", name)
		}
	}
	for name := range special {
		if !validName(name) {
			return fmt.Errorf("special command name %q must be upper-case without whitespace", name)
		}
	}
	return nil
}

// Kind is the outcome of parsing a comment
type Kind int

const (
	None Kind = iota
	Invalid
	User
	Special
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case User:
		return "user"
	case Special:
		return "special"
	default:
		return "none"
	}
}

// Parsed is a parsed command. Prompt and CodeFormat are set for user commands.
type Parsed struct {
	Kind       Kind
	Name       Name
	Prompt     string
	CodeFormat bool
}

// Parse reads the leading "!name" token of raw. Case doesn't matter.
func Parse(raw string) Parsed {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "!") {
		return Parsed{Kind: None}
	}

	token := strings.Fields(body)[0]
	name := Name(strings.ToUpper(strings.TrimPrefix(token, "!")))

	if _, ok := special[name]; ok {
		return Parsed{Kind: Special, Name: name}
	}

	if cmd, ok := Lookup(name); ok {
		return Parsed{
			Kind:       User,
			Name:       name,
			Prompt:     UserPromptPrefix + cmd.Prompt,
			CodeFormat: cmd.CodeFormat,
		}
	}

	return Parsed{Kind: Invalid, Name: name}
}

// Lookup returns a user command by its upper-case name
func Lookup(name Name) (Command, bool) {
	cmd, ok := user[name]
	return cmd, ok
}

func sortedNames[V any](m map[Name]V) []Name {
	names := make([]Name, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// HelpText lists the special commands and then the user commands
func HelpText() string {
	var b strings.Builder
	b.WriteString("Hey. Here's a list of commands you can use in this subbreddit. Type '!' before the command name (case doesn't matter). Have fun!\n\n")

	for _, name := range sortedNames(special) {
		fmt.Fprintf(&b, "* !%s --- %s\n", strings.ToLower(string(name)), special[name])
	}
	for _, name := range sortedNames(user) {
		fmt.Fprintf(&b, "* !%s --- %s\n", strings.ToLower(string(name)), user[name].Description)
	}
	return b.String()
}

// TranslateOutcome is the result of checking the TRANSLATE arguments
type TranslateOutcome int

const (
	TranslateOK TranslateOutcome = iota
	// TranslateNoAction means zero or more than one language word was given
	TranslateNoAction
	// TranslateTooLong means the language word is over MaxLanguageLength characters
	TranslateTooLong
)

// ParseTranslate extracts the target language from "!translate <language>"
func ParseTranslate(body string) (string, TranslateOutcome) {
	words := strings.Fields(body)
	if len(words) != 2 {
		return "", TranslateNoAction
	}

	language := words[1]
	if len([]rune(language)) > MaxLanguageLength {
		return "", TranslateTooLong
	}
	return language, TranslateOK
}

// TranslatePrompt is the system prompt for translating into language
func TranslatePrompt(language string) string {
	return fmt.Sprintf("%sTranslate the comment into %s. Only output the translation.", UserPromptPrefix, language)
}
