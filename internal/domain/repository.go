package domain

// DefaultHost is the code host assumed for targets written as "owner/repo".
const DefaultHost = "github.com"

// Repository identifies one watched repository on a code host.
type Repository struct {
	Host  string
	Owner string
	Name  string
}

// FullName returns "owner/name", the key used by block-list scopes and the state file.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

func (r Repository) String() string {
	if r.Host == "" || r.Host == DefaultHost {
		return r.FullName()
	}
	return r.Host + "/" + r.FullName()
}

// BranchRef is a branch of a watched repository.
type BranchRef struct {
	Repo   Repository
	Branch string
}

func (b BranchRef) String() string {
	return b.Repo.String() + ":" + b.Branch
}
