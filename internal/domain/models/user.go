package models

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"userservice/internal/config"
)

// User is the locally persisted profile for one identity provider subject.
// Sub is the primary key; exactly one row exists per subject.
type User struct {
	Sub            string    `json:"sub" db:"sub"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	ProfilePicture string    `json:"profile_picture" db:"profile_picture"`
	Description    string    `json:"description" db:"description"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Setting holds per-user UI settings.
type Setting struct {
	Sub       string    `json:"sub" db:"sub"`
	Theme     string    `json:"theme" db:"theme"`
	Lang      string    `json:"lang" db:"lang"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Defaults applied when a settings row is first created.
const (
	DefaultTheme = "light"
	DefaultLang  = "en"
)

// Themes accepted by UpdateSettingRequest.
var Themes = []interface{}{"light", "dark", "auto"}

// NewUser returns a User seeded with empty profile fields.
func NewUser(sub string, now time.Time) *User {
	return &User{
		Sub:       sub,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewDefaultSetting returns the settings row created alongside a new user.
func NewDefaultSetting(sub string, now time.Time) *Setting {
	return &Setting{
		Sub:       sub,
		Theme:     DefaultTheme,
		Lang:      DefaultLang,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UserBasicInfo is the public view of a user.
type UserBasicInfo struct {
	Sub            string `json:"sub"`
	DisplayName    string `json:"display_name"`
	ProfilePicture string `json:"profile_picture"`
	Description    string `json:"description"`
}

// UserFullInfo adds identity provider fields to the basic view.
type UserFullInfo struct {
	UserBasicInfo
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// BasicInfo projects the user onto its public view.
func (u *User) BasicInfo() UserBasicInfo {
	return UserBasicInfo{
		Sub:            u.Sub,
		DisplayName:    u.DisplayName,
		ProfilePicture: u.ProfilePicture,
		Description:    u.Description,
	}
}

// IdentityUser is the identity provider's representation of a user.
type IdentityUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Enabled   bool   `json:"enabled"`
}

// FullInfo merges the local user with the identity provider record.
func (u *User) FullInfo(idp *IdentityUser) UserFullInfo {
	info := UserFullInfo{UserBasicInfo: u.BasicInfo()}
	if idp != nil {
		info.Username = idp.Username
		info.Email = idp.Email
		info.FirstName = idp.FirstName
		info.LastName = idp.LastName
	}
	return info
}

// UpdateUserRequest is a partial update of a user. Local fields live in this
// service's database; identity fields live in the identity provider.
type UpdateUserRequest struct {
	DisplayName    *string `json:"display_name"`
	ProfilePicture *string `json:"profile_picture"`
	Description    *string `json:"description"`
	Username       *string `json:"username"`
	Email          *string `json:"email"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
}

// HasLocalFields reports whether any locally stored field is set.
func (r *UpdateUserRequest) HasLocalFields() bool {
	return r.DisplayName != nil || r.ProfilePicture != nil || r.Description != nil
}

// HasIdentityFields reports whether any identity provider field is set.
func (r *UpdateUserRequest) HasIdentityFields() bool {
	return r.Username != nil || r.Email != nil || r.FirstName != nil || r.LastName != nil
}

// IdentityUpdate returns the identity provider fields of the request.
func (r *UpdateUserRequest) IdentityUpdate() *IdentityUserUpdate {
	return &IdentityUserUpdate{
		Username:  r.Username,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
}

// Apply copies the set local fields onto u.
func (r *UpdateUserRequest) Apply(u *User) {
	if r.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*r.DisplayName)
	}
	if r.ProfilePicture != nil {
		u.ProfilePicture = *r.ProfilePicture
	}
	if r.Description != nil {
		u.Description = *r.Description
	}
}

// Validate checks field lengths and formats of the set fields.
func (r *UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.DisplayName, validation.NilOrNotEmpty, validation.Length(1, config.MaxDisplayNameLength)),
		validation.Field(&r.ProfilePicture, validation.Length(0, config.MaxProfilePictureLength)),
		validation.Field(&r.Description, validation.Length(0, config.MaxDescriptionLength)),
		validation.Field(&r.Username, validation.NilOrNotEmpty, validation.Length(1, config.MaxUsernameLength)),
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.EmailFormat),
		validation.Field(&r.FirstName, validation.Length(0, config.MaxNameLength)),
		validation.Field(&r.LastName, validation.Length(0, config.MaxNameLength)),
	)
}

// IdentityUserUpdate carries only the identity provider fields that should change.
type IdentityUserUpdate struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

// UpdateSettingRequest is a partial update of a user's settings.
type UpdateSettingRequest struct {
	Theme *string `json:"theme"`
	Lang  *string `json:"lang"`
}

// Validate checks theme and language values.
func (r *UpdateSettingRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Theme, validation.NilOrNotEmpty, validation.In(Themes...)),
		validation.Field(&r.Lang, validation.NilOrNotEmpty, validation.Length(2, config.MaxLangLength)),
	)
}

// Apply copies the set fields onto s.
func (r *UpdateSettingRequest) Apply(s *Setting) {
	if r.Theme != nil {
		s.Theme = *r.Theme
	}
	if r.Lang != nil {
		s.Lang = *r.Lang
	}
}

// GetUsersBySubsRequest asks for a page of users by subject.
type GetUsersBySubsRequest struct {
	Subs   []string `json:"subs"`
	Offset *int     `json:"offset"`
	Limit  *int     `json:"limit"`
}

// Validate enforces the batch size limit and a non-negative offset.
func (r *GetUsersBySubsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Subs,
			validation.Required,
			validation.Length(1, config.MaxSubsPerRequest).Error(
				fmt.Sprintf("too many subs requested, maximum is %d", config.MaxSubsPerRequest)),
			validation.Each(validation.Required),
		),
		validation.Field(&r.Offset, validation.Min(0)),
	)
}

// Page returns the offset and limit with defaults applied.
// The limit is clamped to config.MaxPageSize.
func (r *GetUsersBySubsRequest) Page() (offset, limit int) {
	offset, limit = 0, config.DefaultPageSize
	if r.Offset != nil && *r.Offset > 0 {
		offset = *r.Offset
	}
	if r.Limit != nil && *r.Limit > 0 {
		limit = min(*r.Limit, config.MaxPageSize)
	}
	return offset, limit
}

// UsersPage is one page of a batch lookup.
type UsersPage struct {
	Users  []UserBasicInfo `json:"users"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}
