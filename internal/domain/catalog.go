package domain

type Product struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Price       int64  `json:"price" db:"price"`
	Description string `json:"description" db:"description"`
	ImageURL    string `json:"img_url" db:"img_url"`
}

type Student struct {
	NIM       int64  `json:"nim" db:"nim"`
	Name      string `json:"name" db:"name"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"tel" db:"tel"`
	AvatarURL string `json:"avatar_url" db:"avatar_url"`
	Address   string `json:"address" db:"address"`
}
