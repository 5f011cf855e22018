package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord user has the organizer role
// before running tournament commands.
type PermissionChecker struct {
	organizerRoleID string
}

// NewPermissionChecker creates a PermissionChecker with the given role ID.
func NewPermissionChecker(organizerRoleID string) *PermissionChecker {
	return &PermissionChecker{organizerRoleID: organizerRoleID}
}

// IsOrganizer checks whether the interaction author has the configured
// organizer role. If the role ID is empty, all users are organizers.
// Returns false if the interaction has no Member (e.g., DM channel
// interactions).
func (p *PermissionChecker) IsOrganizer(i *discordgo.InteractionCreate) bool {
	if p.organizerRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.organizerRoleID)
}
