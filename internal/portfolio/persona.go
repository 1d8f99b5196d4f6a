package portfolio

import (
	"context"
	"fmt"
	"strings"
)

const maxPersonaProjects = 10

// Persona turns the stored profile into the chat assistant's system
// instruction.
type Persona struct {
	service       *Service
	assistantName string
}

func NewPersona(service *Service, assistantName string) *Persona {
	if strings.TrimSpace(assistantName) == "" {
		assistantName = "Portfolio Assistant"
	}
	return &Persona{service: service, assistantName: assistantName}
}

// SystemInstruction never fails; a profile that cannot be read yields the
// generic instruction.
func (p *Persona) SystemInstruction(ctx context.Context) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You are %q, the digital assistant of this portfolio's owner.\n", p.assistantName)
	builder.WriteString("Answer questions about the owner, their technical skills and their interests. ")
	builder.WriteString("Be professional with a modern, energetic tone. ")
	builder.WriteString("If asked something personal that is not covered below, answer creatively while keeping the owner's privacy. ")
	builder.WriteString("Never reveal credentials, passwords or anything about the admin area.\n")

	profile, err := p.service.Snapshot(ctx)
	if err != nil {
		return builder.String()
	}
	if profile.Bio != nil {
		bio := profile.Bio
		fmt.Fprintf(&builder, "\nOwner: %s", bio.Name)
		if bio.Profession != "" {
			fmt.Fprintf(&builder, ", %s", bio.Profession)
		}
		if bio.Location != "" {
			fmt.Fprintf(&builder, " based in %s", bio.Location)
		}
		builder.WriteString(".\n")
		if bio.Description != "" {
			fmt.Fprintf(&builder, "Biography: %s\n", bio.Description)
		}
	}
	if len(profile.Projects) > 0 {
		builder.WriteString("\nProjects:\n")
		for index, project := range profile.Projects {
			if index == maxPersonaProjects {
				break
			}
			fmt.Fprintf(&builder, "- %s", project.Title)
			if len(project.Tech) > 0 {
				fmt.Fprintf(&builder, " (%s)", strings.Join(project.Tech, ", "))
			}
			if project.Description != "" {
				fmt.Fprintf(&builder, ": %s", project.Description)
			}
			builder.WriteString("\n")
		}
	}
	if len(profile.Interests) > 0 {
		builder.WriteString("\nInterests:\n")
		for _, interest := range profile.Interests {
			fmt.Fprintf(&builder, "- %s %s: %s\n", interest.Category, interest.Title, interest.Description)
		}
	}
	return builder.String()
}
