package models

// UserProfile is the slice of the user record this service reads: enough to
// validate purchase resolution targets and to label notifications.
type UserProfile struct {
	UserID  string `dynamodbav:"userId" json:"userId"` // Partition key
	Name    string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	EmailID string `dynamodbav:"emailId,omitempty" json:"emailId,omitempty"`
}

// UserProfilesTable is the DynamoDB table name for user profiles
const UserProfilesTable = "Users"
