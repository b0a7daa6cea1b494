package userdb

type (
	UserNotFound       struct{}
	CredentialNotFound struct{}
)

func (UserNotFound) Error() string {
	return "user not found"
}

func (CredentialNotFound) Error() string {
	return "credential not found"
}
